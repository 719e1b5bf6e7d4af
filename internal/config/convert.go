package config

import (
	"github.com/danmuck/meshmac/internal/mesh"
	"github.com/danmuck/meshmac/internal/radio"
)

func (cfg Node) Identity() (mesh.StaticIdentity, error) {
	return mesh.NewStaticIdentity(cfg.NodeID, cfg.Peers)
}

func (cfg Node) UDP() radio.UDPConfig {
	return radio.UDPConfig{
		Self:      cfg.NodeID,
		Group:     cfg.MulticastGroup,
		Interface: cfg.Interface,
	}
}
