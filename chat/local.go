package chat

import (
	"context"
	"log/slog"
)

// LocalSender is the dry-run sender: every message goes to the log instead
// of the network. Used when running without credentials or with the local
// config flag set.
type LocalSender struct {
	Server string
}

func (l *LocalSender) Send(ctx context.Context, room int, text string) error {
	slog.Info("local - not sending message",
		slog.String("server", l.Server), slog.Int("room", room), slog.String("text", text))
	return nil
}

func (l *LocalSender) Close(ctx context.Context) error {
	slog.Info("local - not logging out", slog.String("server", l.Server))
	return nil
}
