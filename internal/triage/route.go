// Package triage runs the poll cycle: fetch unseen mail, classify it, answer
// or escalate, and file it away.
package triage

import "github.com/nhle/mailtriage/internal/classifier"

// Route is what happens to a classified message.
type Route int

const (
	RouteEscalate Route = iota
	RouteSendAndArchive
)

func (r Route) String() string {
	if r == RouteSendAndArchive {
		return "send_and_archive"
	}
	return "escalate"
}

// Decide routes a message to send-and-archive only when the classifier
// wants to reply and its confidence reaches threshold (inclusive).
func Decide(action classifier.Action, confidence, threshold float64) Route {
	if action == classifier.ActionReply && confidence >= threshold {
		return RouteSendAndArchive
	}
	return RouteEscalate
}
