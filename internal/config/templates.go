package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/meshmac/internal/mac/addr"
	"github.com/pelletier/go-toml/v2"
)

// Template renders the default node config for one radio kind.
func Template(kind string) (string, error) {
	cfg := Default()
	switch k := strings.ToLower(strings.TrimSpace(kind)); k {
	case RadioUDP, RadioSim:
		cfg.Radio = k
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
	body, err := Render(cfg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(templateHeader, cfg.Radio, uint8(addr.Broadcast)) + body, nil
}

// Render encodes cfg in the same layout Load reads.
func Render(cfg Node) (string, error) {
	out, err := toml.Marshal(toFile(cfg))
	if err != nil {
		return "", fmt.Errorf("config render failed: %w", err)
	}
	return string(out), nil
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

func toFile(cfg Node) fileConfig {
	peers := make([]int64, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		peers = append(peers, int64(p))
	}
	origins := cfg.CorsOrigins
	if origins == nil {
		origins = []string{}
	}
	return fileConfig{
		NodeID:            int64(cfg.NodeID),
		Peers:             peers,
		Radio:             cfg.Radio,
		MulticastGroup:    cfg.MulticastGroup,
		Interface:         cfg.Interface,
		StatusAddr:        cfg.StatusAddr,
		CorsOrigins:       origins,
		RTSTimeout:        cfg.MAC.RTSTimeout.String(),
		CTSTimeout:        cfg.MAC.CTSTimeout.String(),
		DataTimeout:       cfg.MAC.DataTimeout.String(),
		ACKTimeout:        cfg.MAC.ACKTimeout.String(),
		LateReplyWindow:   cfg.MAC.LateReplyWindow.String(),
		InitiateRatio:     cfg.Loop.InitiateRatio,
		BusyBackoff:       cfg.Loop.Backoff.InitialDelay.String(),
		BackoffMultiplier: cfg.Loop.Backoff.Multiplier,
		BackoffMax:        cfg.Loop.Backoff.MaxDelay.String(),
		BackoffJitter:     cfg.Loop.Backoff.Jitter,
		PayloadLen:        cfg.Loop.PayloadLen,
	}
}

const templateHeader = `# meshnode config (radio=%s)
# node_id is this station's address; peers lists every station on the channel.
# Address %d is the broadcast address and is rejected in both.
`
