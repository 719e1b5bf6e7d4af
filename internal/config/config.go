package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/meshmac/internal/mac"
	"github.com/danmuck/meshmac/internal/mac/addr"
	"github.com/danmuck/meshmac/internal/mac/frame"
	"github.com/danmuck/meshmac/internal/mesh"
	"github.com/danmuck/meshmac/internal/radio"
)

const (
	RadioUDP = "udp"
	RadioSim = "sim"

	DefaultStatusAddr = "127.0.0.1:9750"
)

var (
	ErrInvalidNodeID  = errors.New("config: invalid node_id")
	ErrNoPeers        = errors.New("config: peers must name at least one node besides node_id")
	ErrInvalidRadio   = errors.New("config: radio must be udp or sim")
	ErrInvalidTimeout = errors.New("config: phase timeouts must be positive")
	ErrInvalidRatio   = errors.New("config: initiate_ratio must be within [0,1]")
	ErrInvalidBackoff = errors.New("config: invalid backoff")
	ErrInvalidPayload = errors.New("config: payload_len out of range")
	ErrUnknownKeys    = errors.New("config: unknown keys")
)

// Node is the resolved configuration for one meshnode process.
type Node struct {
	NodeID         addr.Addr
	Peers          []addr.Addr
	Radio          string
	MulticastGroup string
	Interface      string
	StatusAddr     string
	CorsOrigins    []string

	MAC  mac.Config
	Loop mesh.Config
}

// fileConfig mirrors the TOML layout. Durations are Go duration strings.
type fileConfig struct {
	NodeID            int64    `toml:"node_id"`
	Peers             []int64  `toml:"peers"`
	Radio             string   `toml:"radio"`
	MulticastGroup    string   `toml:"multicast_group"`
	Interface         string   `toml:"interface"`
	StatusAddr        string   `toml:"status_addr"`
	CorsOrigins       []string `toml:"cors_origins"`
	RTSTimeout        string   `toml:"rts_timeout"`
	CTSTimeout        string   `toml:"cts_timeout"`
	DataTimeout       string   `toml:"data_timeout"`
	ACKTimeout        string   `toml:"ack_timeout"`
	LateReplyWindow   string   `toml:"late_reply_window"`
	InitiateRatio     float64  `toml:"initiate_ratio"`
	BusyBackoff       string   `toml:"busy_backoff"`
	BackoffMultiplier float64  `toml:"backoff_multiplier"`
	BackoffMax        string   `toml:"backoff_max"`
	BackoffJitter     bool     `toml:"backoff_jitter"`
	PayloadLen        int      `toml:"payload_len"`
}

func Default() Node {
	return Node{
		NodeID:         0,
		Peers:          []addr.Addr{1, 2, 3},
		Radio:          RadioUDP,
		MulticastGroup: radio.DefaultMulticastGroup,
		StatusAddr:     DefaultStatusAddr,
		MAC:            mac.DefaultConfig(),
		Loop:           mesh.DefaultConfig(),
	}
}

// Load overlays the keys present in path onto Default and validates the result.
func Load(path string) (Node, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Node{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Node{}, fmt.Errorf("%w (%s): %s", ErrUnknownKeys, path, strings.Join(keys, ", "))
	}

	if meta.IsDefined("node_id") {
		if raw.NodeID < 0 || raw.NodeID > int64(addr.MaxUnicast) {
			return Node{}, fmt.Errorf("%w: %d", ErrInvalidNodeID, raw.NodeID)
		}
		cfg.NodeID = addr.Addr(raw.NodeID)
	}

	if meta.IsDefined("peers") {
		peers, err := normalizePeers(raw.Peers)
		if err != nil {
			return Node{}, err
		}
		cfg.Peers = peers
	}

	if meta.IsDefined("radio") {
		cfg.Radio = strings.ToLower(strings.TrimSpace(raw.Radio))
	}

	if meta.IsDefined("multicast_group") {
		cfg.MulticastGroup = strings.TrimSpace(raw.MulticastGroup)
	}

	if meta.IsDefined("interface") {
		cfg.Interface = strings.TrimSpace(raw.Interface)
	}

	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}

	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"rts_timeout", raw.RTSTimeout, &cfg.MAC.RTSTimeout},
		{"cts_timeout", raw.CTSTimeout, &cfg.MAC.CTSTimeout},
		{"data_timeout", raw.DataTimeout, &cfg.MAC.DataTimeout},
		{"ack_timeout", raw.ACKTimeout, &cfg.MAC.ACKTimeout},
		{"late_reply_window", raw.LateReplyWindow, &cfg.MAC.LateReplyWindow},
		{"busy_backoff", raw.BusyBackoff, &cfg.Loop.Backoff.InitialDelay},
		{"backoff_max", raw.BackoffMax, &cfg.Loop.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Node{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("initiate_ratio") {
		cfg.Loop.InitiateRatio = raw.InitiateRatio
	}

	if meta.IsDefined("backoff_multiplier") {
		cfg.Loop.Backoff.Multiplier = raw.BackoffMultiplier
	}

	if meta.IsDefined("backoff_jitter") {
		cfg.Loop.Backoff.Jitter = raw.BackoffJitter
	}

	if meta.IsDefined("payload_len") {
		cfg.Loop.PayloadLen = raw.PayloadLen
	}

	if err := Validate(cfg); err != nil {
		return Node{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func Validate(cfg Node) error {
	if !cfg.NodeID.IsUnicast() {
		return fmt.Errorf("%w: %v", ErrInvalidNodeID, cfg.NodeID)
	}
	others := 0
	for _, p := range cfg.Peers {
		if !p.IsUnicast() {
			return fmt.Errorf("%w: peer %v", addr.ErrInvalidAddr, p)
		}
		if p != cfg.NodeID {
			others++
		}
	}
	if others == 0 {
		return ErrNoPeers
	}

	switch cfg.Radio {
	case RadioUDP:
		if strings.TrimSpace(cfg.MulticastGroup) == "" {
			return fmt.Errorf("config missing multicast_group for udp radio")
		}
	case RadioSim:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRadio, cfg.Radio)
	}

	timeouts := []struct {
		key string
		d   time.Duration
	}{
		{"rts_timeout", cfg.MAC.RTSTimeout},
		{"cts_timeout", cfg.MAC.CTSTimeout},
		{"data_timeout", cfg.MAC.DataTimeout},
		{"ack_timeout", cfg.MAC.ACKTimeout},
		{"late_reply_window", cfg.MAC.LateReplyWindow},
	}
	for _, to := range timeouts {
		if to.d <= 0 {
			return fmt.Errorf("%w: %s=%s", ErrInvalidTimeout, to.key, to.d)
		}
	}

	if cfg.Loop.InitiateRatio < 0 || cfg.Loop.InitiateRatio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidRatio, cfg.Loop.InitiateRatio)
	}
	b := cfg.Loop.Backoff
	if b.InitialDelay < 0 || b.MaxDelay < 0 {
		return fmt.Errorf("%w: negative delay", ErrInvalidBackoff)
	}
	if b.Multiplier < 1 {
		return fmt.Errorf("%w: backoff_multiplier=%v must be >= 1", ErrInvalidBackoff, b.Multiplier)
	}
	if b.MaxDelay > 0 && b.MaxDelay < b.InitialDelay {
		return fmt.Errorf("%w: backoff_max=%s below busy_backoff=%s", ErrInvalidBackoff, b.MaxDelay, b.InitialDelay)
	}
	if cfg.Loop.PayloadLen < 3 || cfg.Loop.PayloadLen > frame.MaxPayloadLen {
		return fmt.Errorf("%w: %d not in [3,%d]", ErrInvalidPayload, cfg.Loop.PayloadLen, frame.MaxPayloadLen)
	}
	return nil
}

func normalizePeers(in []int64) ([]addr.Addr, error) {
	out := make([]addr.Addr, 0, len(in))
	for _, p := range in {
		if p < 0 || p > int64(addr.MaxUnicast) {
			return nil, fmt.Errorf("%w: peer %d", addr.ErrInvalidAddr, p)
		}
		out = append(out, addr.Addr(p))
	}
	return out, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		v := strings.TrimSpace(o)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
