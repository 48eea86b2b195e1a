package transfer_test

import (
	"testing"

	"courier/internal/transfer"
)

func TestParseKindClosedSet(t *testing.T) {
	if got := transfer.ParseKind(" Video "); got != transfer.KindVideo {
		t.Fatalf("ParseKind = %q, want video", got)
	}
	if got := transfer.ParseKind("poll"); got != transfer.KindUnknown {
		t.Fatalf("ParseKind(poll) = %q, want unknown", got)
	}
	if got := transfer.ParseKind(""); got != transfer.KindUnknown {
		t.Fatalf("ParseKind(empty) = %q, want unknown", got)
	}
}

func TestKindCapabilities(t *testing.T) {
	if !transfer.KindVideo.HasThumbnail() {
		t.Fatal("video should carry thumbnails")
	}
	if transfer.KindPhoto.HasThumbnail() {
		t.Fatal("photo should not carry thumbnails")
	}
	if transfer.KindUnknown.Relayable() {
		t.Fatal("unknown kinds must not be relayable")
	}
	if transfer.KindSticker.MaxSizeBytes() != 1024*1024 {
		t.Fatalf("sticker ceiling = %d, want 1MiB", transfer.KindSticker.MaxSizeBytes())
	}
}

func TestKindExtensionMimeOverride(t *testing.T) {
	if got := transfer.KindVideo.Extension(""); got != ".mp4" {
		t.Fatalf("video default extension = %q", got)
	}
	if got := transfer.KindVideo.Extension("video/x-matroska"); got != ".mkv" {
		t.Fatalf("matroska extension = %q", got)
	}
	if got := transfer.KindDocument.Extension("application/pdf"); got != "" {
		t.Fatalf("document extension = %q, want empty", got)
	}
}

func TestOutcomeKindString(t *testing.T) {
	cases := map[transfer.OutcomeKind]string{
		transfer.OutcomeSuccess:          "success",
		transfer.OutcomeRateLimited:      "rate_limited",
		transfer.OutcomeExpiredReference: "expired_reference",
		transfer.OutcomeCancelled:        "cancelled",
		transfer.OutcomeFatal:            "fatal",
	}
	for kind, want := range cases {
		if kind.String() != want {
			t.Fatalf("String() = %q, want %q", kind.String(), want)
		}
	}
}
