package app

import (
	"time"

	"github.com/samber/do/v2"

	"github.com/nfrund/huddle/internal/chat"
	"github.com/nfrund/huddle/internal/config"
	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/hub"
	"github.com/nfrund/huddle/internal/metrics"
	"github.com/nfrund/huddle/internal/presence"
	"github.com/nfrund/huddle/internal/pubsub"
	"github.com/nfrund/huddle/internal/storage"
	"github.com/nfrund/huddle/internal/websocket"
)

// healthInterval is how often the store connection is probed.
const healthInterval = 30 * time.Second

func provideHub(i do.Injector) (*hub.Hub, error) {
	store, err := do.Invoke[domain.Store](i)
	if err != nil {
		return nil, err
	}
	m, err := do.Invoke[*metrics.Metrics](i)
	if err != nil {
		return nil, err
	}
	return hub.New(store, hub.WithMetrics(m)), nil
}

func provideBlobStore(i do.Injector) (*storage.BlobStore, error) {
	cfg, err := do.Invoke[*config.Config](i)
	if err != nil {
		return nil, err
	}
	disk, err := storage.NewDiskStore(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	return storage.NewBlobStore(disk, cfg.UploadBaseURL), nil
}

func provideIngest(i do.Injector) (*chat.Ingest, error) {
	store, err := do.Invoke[domain.Store](i)
	if err != nil {
		return nil, err
	}
	blobs, err := do.Invoke[*storage.BlobStore](i)
	if err != nil {
		return nil, err
	}
	backbone, err := do.Invoke[pubsub.Backbone](i)
	if err != nil {
		return nil, err
	}
	m, err := do.Invoke[*metrics.Metrics](i)
	if err != nil {
		return nil, err
	}
	return chat.NewIngest(store, blobs, backbone, m), nil
}

func provideFanout(i do.Injector) (*chat.Fanout, error) {
	cfg, err := do.Invoke[*config.Config](i)
	if err != nil {
		return nil, err
	}
	h, err := do.Invoke[*hub.Hub](i)
	if err != nil {
		return nil, err
	}
	backbone, err := do.Invoke[pubsub.Backbone](i)
	if err != nil {
		return nil, err
	}
	m, err := do.Invoke[*metrics.Metrics](i)
	if err != nil {
		return nil, err
	}
	dedup, err := chat.NewDedup(cfg.DedupCacheSize)
	if err != nil {
		return nil, err
	}
	return chat.NewFanout(h, backbone, dedup, m), nil
}

func providePresence(i do.Injector) (*presence.Service, error) {
	store, err := do.Invoke[domain.Store](i)
	if err != nil {
		return nil, err
	}
	h, err := do.Invoke[*hub.Hub](i)
	if err != nil {
		return nil, err
	}
	backbone, err := do.Invoke[pubsub.Backbone](i)
	if err != nil {
		return nil, err
	}
	return presence.NewService(store, backbone, backbone, h), nil
}

func provideTyping(i do.Injector) (*presence.Typing, error) {
	cfg, err := do.Invoke[*config.Config](i)
	if err != nil {
		return nil, err
	}
	h, err := do.Invoke[*hub.Hub](i)
	if err != nil {
		return nil, err
	}
	backbone, err := do.Invoke[pubsub.Backbone](i)
	if err != nil {
		return nil, err
	}
	return presence.NewTyping(backbone, backbone, h, presence.WithTimeout(cfg.TypingTimeout)), nil
}

func provideBridge(i do.Injector) (*websocket.Bridge, error) {
	cfg, err := do.Invoke[*config.Config](i)
	if err != nil {
		return nil, err
	}
	h, err := do.Invoke[*hub.Hub](i)
	if err != nil {
		return nil, err
	}
	ingest, err := do.Invoke[*chat.Ingest](i)
	if err != nil {
		return nil, err
	}
	presenceSvc, err := do.Invoke[*presence.Service](i)
	if err != nil {
		return nil, err
	}
	typing, err := do.Invoke[*presence.Typing](i)
	if err != nil {
		return nil, err
	}
	return websocket.NewBridge(h, ingest, presenceSvc, typing, websocket.WithSendBuffer(cfg.SendBuffer)), nil
}
