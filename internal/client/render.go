package client

import "github.com/nfrund/huddle/internal/domain"

// ShouldRender reports whether a fanned-out envelope should be shown to
// viewerID. A sender already shows an optimistic copy of its own text and
// file messages; images only exist once uploaded, so they always render.
func ShouldRender(env domain.Envelope, viewerID string) bool {
	if viewerID == "" || env.Message.SenderID != viewerID {
		return true
	}
	return env.Message.MessageType == domain.KindImage
}
