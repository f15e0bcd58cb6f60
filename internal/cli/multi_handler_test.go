package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestMultiLevelHandlerLevels(t *testing.T) {
	var stderrBuf, fileBuf bytes.Buffer
	stderrHandler := slog.NewTextHandler(&stderrBuf, &slog.HandlerOptions{Level: slog.LevelWarn})
	fileHandler := slog.NewTextHandler(&fileBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewMultiLevelHandler(stderrHandler, fileHandler))

	logger.Debug("frame read", "size", 4704)
	logger.Warn("DST decoder init failed")

	if strings.Contains(stderrBuf.String(), "frame read") {
		t.Errorf("stderr should not contain debug records, got: %s", stderrBuf.String())
	}
	if !strings.Contains(stderrBuf.String(), "DST decoder init failed") {
		t.Errorf("stderr should contain warnings, got: %s", stderrBuf.String())
	}
	for _, want := range []string{"frame read", "size=4704", "DST decoder init failed"} {
		if !strings.Contains(fileBuf.String(), want) {
			t.Errorf("file output should contain %q, got: %s", want, fileBuf.String())
		}
	}
}

func TestMultiLevelHandlerEnabled(t *testing.T) {
	var buf bytes.Buffer
	h := NewMultiLevelHandler(
		slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}),
	)

	ctx := context.Background()
	if h.Enabled(ctx, slog.LevelDebug) {
		t.Error("no handler takes debug records")
	}
	if !h.Enabled(ctx, slog.LevelInfo) {
		t.Error("second handler takes info records")
	}

	if NewMultiLevelHandler().Enabled(ctx, slog.LevelError) {
		t.Error("an empty handler should not be enabled")
	}
}

func TestMultiLevelHandlerAttrsAndGroups(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := NewMultiLevelHandler(
		slog.NewTextHandler(&buf1, nil),
		slog.NewTextHandler(&buf2, nil),
	)

	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("path", "/music/album.dff")}).WithGroup("frame"))
	logger.Error("read failed", "index", 7)

	for i, out := range []string{buf1.String(), buf2.String()} {
		if !strings.Contains(out, "path=/music/album.dff") {
			t.Errorf("handler %d output should contain the attribute, got: %s", i, out)
		}
		if !strings.Contains(out, "frame.index=7") {
			t.Errorf("handler %d output should contain the group, got: %s", i, out)
		}
	}
}

type failingHandler struct {
	slog.Handler
}

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("log file gone")
}

func TestMultiLevelHandlerKeepsLoggingAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	h := NewMultiLevelHandler(failingHandler{}, slog.NewTextHandler(&buf, nil))

	record := slog.NewRecord(time.Time{}, slog.LevelInfo, "container scanned", 0)
	err := h.Handle(context.Background(), record)
	if err == nil || !strings.Contains(err.Error(), "log file gone") {
		t.Errorf("expected the handler error, got %v", err)
	}
	if !strings.Contains(buf.String(), "container scanned") {
		t.Errorf("second handler should still log, got: %s", buf.String())
	}
}
