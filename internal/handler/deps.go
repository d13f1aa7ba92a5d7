package handler

import (
	"pairchat/internal/app/realtime"
	"pairchat/internal/app/storage"
	"pairchat/internal/app/store"
	"pairchat/internal/configs"
	"pairchat/internal/pkg/pow"
)

// AppDeps bundles the shared dependencies the HTTP handlers need.
type AppDeps struct {
	Gateway  *realtime.Gateway
	Presence *realtime.PresenceTracker
	Config   *configs.AppConfig
	Storage  storage.Service
	Store    *store.Postgres
	Pow      *pow.PoWManager
}
