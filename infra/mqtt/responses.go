package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
	coremqtt "github.com/mozocode/On-The-Way-Rebuild/core/mqtt"
)

// Answerer is implemented by *dispatch.Arbiter.
type Answerer interface {
	Accept(ctx context.Context, jobID, heroID string) error
	Decline(ctx context.Context, jobID, heroID, reason string) error
}

// Response is what the hero app publishes on <prefix>/<hero>/response.
type Response struct {
	JobID  string `json:"job_id"`
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// Result is published back on <prefix>/<hero>/result.
type Result struct {
	JobID  string `json:"job_id"`
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// ResponseListener feeds hero answers received over MQTT into the arbiter.
// The hero identity is the topic segment, never the payload.
type ResponseListener struct {
	client  coremqtt.Client
	topics  coremqtt.Topics
	arbiter Answerer
	log     logger.Logger
	timeout time.Duration
}

// NewResponseListener creates a listener; call Start to subscribe.
func NewResponseListener(client coremqtt.Client, topics coremqtt.Topics, a Answerer, log logger.Logger) *ResponseListener {
	return &ResponseListener{client: client, topics: topics, arbiter: a, log: logger.OrNop(log), timeout: 10 * time.Second}
}

// Start subscribes to every hero's response topic.
func (l *ResponseListener) Start() error {
	return l.client.Subscribe(l.topics.Wildcard("response"), coremqtt.KindResponse, l.handle)
}

func (l *ResponseListener) handle(topic string, payload []byte) {
	heroID, err := l.topics.HeroID(topic)
	if err != nil {
		l.log.Warnf("ignoring response: %v", err)
		return
	}
	var r Response
	if err := json.Unmarshal(payload, &r); err != nil {
		l.log.Warnf("bad response from %s: %v", heroID, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	err = l.Apply(ctx, heroID, r)
	res := Result{JobID: r.JobID, Action: r.Action, OK: err == nil}
	if err != nil {
		res.Error = err.Error()
		l.log.Infof("%s %s for job %s rejected: %v", heroID, r.Action, r.JobID, err)
	}
	b, _ := json.Marshal(res)
	if err := l.client.Publish(ctx, l.topics.Result(heroID), coremqtt.KindResult, b); err != nil {
		l.log.Warnf("result for %s not delivered: %v", heroID, err)
	}
}

// Apply routes r to the arbiter on behalf of heroID.
func (l *ResponseListener) Apply(ctx context.Context, heroID string, r Response) error {
	switch strings.ToLower(r.Action) {
	case "accept":
		return l.arbiter.Accept(ctx, r.JobID, heroID)
	case "decline":
		return l.arbiter.Decline(ctx, r.JobID, heroID, r.Reason)
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}
}
