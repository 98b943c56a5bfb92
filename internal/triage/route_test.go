package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/nhle/mailtriage/internal/classifier"
)

func TestDecideBoundary(t *testing.T) {
	tests := []struct {
		name       string
		action     classifier.Action
		confidence float64
		want       Route
	}{
		{"at threshold", classifier.ActionReply, 0.65, RouteSendAndArchive},
		{"just below", classifier.ActionReply, 0.649999, RouteEscalate},
		{"escalate wins over confidence", classifier.ActionEscalate, 0.99, RouteEscalate},
		{"full confidence", classifier.ActionReply, 1, RouteSendAndArchive},
		{"zero", classifier.ActionReply, 0, RouteEscalate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.action, tt.confidence, 0.65))
		})
	}
}

func TestDecideNeverSendsOnEscalate(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		confidence := rapid.Float64Range(0, 1).Draw(t, "confidence")
		threshold := rapid.Float64Range(0, 1).Draw(t, "threshold")

		if Decide(classifier.ActionEscalate, confidence, threshold) != RouteEscalate {
			t.Fatalf("escalate action routed to send")
		}
		got := Decide(classifier.ActionReply, confidence, threshold)
		if (got == RouteSendAndArchive) != (confidence >= threshold) {
			t.Fatalf("Decide(reply, %v, %v) = %v", confidence, threshold, got)
		}
	})
}

func TestRouteString(t *testing.T) {
	assert.Equal(t, "escalate", RouteEscalate.String())
	assert.Equal(t, "send_and_archive", RouteSendAndArchive.String())
}
