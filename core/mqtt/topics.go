package mqtt

import (
	"fmt"
	"strings"
)

// DefaultPrefix roots every hero topic.
const DefaultPrefix = "otw/heroes"

// Topics builds hero topics of the form <prefix>/<hero id>/<leaf>.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return DefaultPrefix
	}
	return p
}

// Notify is where offers and status messages for id are published.
func (t Topics) Notify(id string) string { return t.prefix() + "/" + id + "/notify" }

// Response is where hero id publishes accept/decline answers.
func (t Topics) Response(id string) string { return t.prefix() + "/" + id + "/response" }

// Result carries the arbiter's verdict on a response back to the hero.
func (t Topics) Result(id string) string { return t.prefix() + "/" + id + "/result" }

// Location is where hero id reports its position.
func (t Topics) Location(id string) string { return t.prefix() + "/" + id + "/location" }

// Wildcard subscribes to leaf for every hero.
func (t Topics) Wildcard(leaf string) string { return t.prefix() + "/+/" + leaf }

// HeroID extracts the hero segment from a topic built by Topics.
func (t Topics) HeroID(topic string) (string, error) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/")
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		return "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	return parts[0], nil
}
