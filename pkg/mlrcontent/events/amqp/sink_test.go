package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/mlr-content/pkg/mlrcontent"
	"github.com/tendant/mlr-content/pkg/mlrcontent/repo/memory"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakePublisher) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		keys = append(keys, m.key)
	}
	return keys
}

func TestSink_PublishesLifecycle(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewSink(pub, "")
	store, err := mlrcontent.NewContentStore(memory.New(), mlrcontent.WithEventSink(sink))
	require.NoError(t, err)
	ctx := context.Background()

	item, err := store.SaveContent(ctx, mlrcontent.SaveContentRequest{
		ContentType: mlrcontent.ContentTypeEmail,
		Audience:    mlrcontent.AudienceHCP,
		HTML:        "<p>A</p>",
	})
	require.NoError(t, err)
	_, _, err = store.UpdateContentHTML(ctx, mlrcontent.UpdateHTMLRequest{ID: item.ID, HTML: "<p>B</p>", ChangeNotes: "tighten copy"})
	require.NoError(t, err)
	_, err = store.UpdateContentStatus(ctx, item.ID, mlrcontent.ContentStatusPendingReview, "p-1")
	require.NoError(t, err)
	require.NoError(t, store.DeleteContent(ctx, item.ID))

	assert.Equal(t, []string{KeyContentCreated, KeyContentVersionAdded, KeyContentStatusChanged, KeyContentDeleted}, pub.keys())

	pub.mu.Lock()
	defer pub.mu.Unlock()
	for _, m := range pub.msgs {
		assert.Equal(t, DefaultExchange, m.exchange)
		assert.Equal(t, "application/json", m.msg.ContentType)
		assert.Equal(t, amqp.Persistent, m.msg.DeliveryMode)
	}

	var env struct {
		Type string `json:"type"`
		Data struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			From   string `json:"from"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(pub.msgs[2].msg.Body, &env))
	assert.Equal(t, KeyContentStatusChanged, env.Type)
	assert.Equal(t, item.ID.String(), env.Data.ID)
	assert.Equal(t, "pending_review", env.Data.Status)
	assert.Equal(t, "draft", env.Data.From)

	var version struct {
		Data struct {
			Sequence    int    `json:"sequence"`
			ChangeNotes string `json:"changeNotes"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(pub.msgs[1].msg.Body, &version))
	assert.Equal(t, 2, version.Data.Sequence)
	assert.Equal(t, "tighten copy", version.Data.ChangeNotes)
}

func TestSink_FeedbackRecorded(t *testing.T) {
	pub := &fakePublisher{}
	repo := memory.New()
	ing, err := mlrcontent.NewWebhookIngestor(repo, mlrcontent.WithIngestorEventSink(NewSink(pub, "reviews")))
	require.NoError(t, err)

	_, err = ing.Ingest(context.Background(), []byte(`{"event":"proof.decision","proof":{"id":"p-1","decision":"approved"}}`))
	require.NoError(t, err)

	require.Equal(t, []string{KeyFeedbackRecorded}, pub.keys())
	var env struct {
		Data struct {
			ProofID  string `json:"proofId"`
			Decision string `json:"decision"`
			Event    string `json:"event"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(pub.msgs[0].msg.Body, &env))
	assert.Equal(t, "reviews", pub.msgs[0].exchange)
	assert.Equal(t, "p-1", env.Data.ProofID)
	assert.Equal(t, "approved", env.Data.Decision)
	assert.Equal(t, mlrcontent.EventProofDecision, env.Data.Event)
}

func TestSink_PublishFailureDoesNotFailOperation(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	sink := NewSink(pub, "")
	store, err := mlrcontent.NewContentStore(memory.New(), mlrcontent.WithEventSink(sink))
	require.NoError(t, err)

	_, err = store.SaveContent(context.Background(), mlrcontent.SaveContentRequest{
		ContentType: mlrcontent.ContentTypeBanner,
		Audience:    mlrcontent.AudiencePatient,
		HTML:        "<p>A</p>",
	})
	assert.NoError(t, err)
	assert.Error(t, sink.ContentDeleted(context.Background(), uuid.Nil))
}
