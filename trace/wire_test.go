package trace

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInjectExtractRoundTrip(t *testing.T) {
	sc := NewRoot().WithBaggage("tenant", "acme")
	carrier := MapCarrier{}

	Inject(sc, carrier)
	got := Extract(carrier)

	assert.Equal(t, sc.TraceID, got.TraceID)
	assert.Equal(t, sc.SpanID, got.SpanID)
	assert.True(t, got.Sampled)
	assert.True(t, got.Remote)
	assert.Equal(t, "acme", got.BaggageValue("tenant"))
}

func TestInjectInvalidContext(t *testing.T) {
	carrier := MapCarrier{}
	Inject(Empty(), carrier)
	assert.Empty(t, carrier)
}

func TestInjectUnsampled(t *testing.T) {
	sc := NewRoot()
	sc.Sampled = false
	carrier := MapCarrier{}

	Inject(sc, carrier)

	got := Extract(carrier)
	assert.True(t, got.IsValid())
	assert.False(t, got.Sampled)
}

func TestExtractMalformed(t *testing.T) {
	tests := []struct {
		name        string
		traceparent string
	}{
		{"empty header", ""},
		{"garbage", "not-a-traceparent"},
		{"wrong part count", "00-abc-def"},
		{"unknown version", "ff-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
		{"short trace id", "00-4bf92f-00f067aa0ba902b7-01"},
		{"zero trace id", "00-00000000000000000000000000000000-00f067aa0ba902b7-01"},
		{"zero span id", "00-4bf92f3577b34da6a3ce929d0e0e4736-0000000000000000-01"},
		{"bad flags length", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-011"},
		{"non-hex flags", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-zz"},
		{"non-hex trace id", "00-zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz-00f067aa0ba902b7-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			carrier := MapCarrier{}
			if tt.traceparent != "" {
				carrier.Set(TraceparentHeader, tt.traceparent)
			}
			got := Extract(carrier)
			assert.False(t, got.IsValid(), "malformed input must degrade to empty context")
		})
	}
}

func TestExtractSampledFlagBit(t *testing.T) {
	tests := []struct {
		flags   string
		sampled bool
	}{
		{"00", false},
		{"01", true},
		{"02", false},
		// Sampling is bit 0; other flag bits must not mask it.
		{"03", true},
		{"09", true},
		{"fe", false},
		{"ff", true},
	}
	for _, tt := range tests {
		t.Run(tt.flags, func(t *testing.T) {
			carrier := MapCarrier{
				TraceparentHeader: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-" + tt.flags,
			}
			got := Extract(carrier)
			require.True(t, got.IsValid())
			assert.Equal(t, tt.sampled, got.Sampled)
		})
	}
}

func TestExtractBadBaggageKeepsTrace(t *testing.T) {
	carrier := MapCarrier{
		TraceparentHeader: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		BaggageHeader:     ";;;not valid baggage;;;",
	}

	got := Extract(carrier)

	require.True(t, got.IsValid())
	assert.Equal(t, 0, got.Baggage.Len())
}

func TestHeaderCarrier(t *testing.T) {
	sc := NewRoot()
	header := http.Header{}

	Inject(sc, HeaderCarrier(header))

	require.NotEmpty(t, header.Get("traceparent"))
	got := Extract(HeaderCarrier(header))
	assert.Equal(t, sc.TraceID, got.TraceID)
}
