package flow_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-engine/internal/classifier"
	"github.com/spec-kit/support-engine/internal/compliance"
	"github.com/spec-kit/support-engine/internal/datasource"
	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/events"
	"github.com/spec-kit/support-engine/internal/extractor"
	"github.com/spec-kit/support-engine/internal/flow"
	"github.com/spec-kit/support-engine/internal/intents"
	"github.com/spec-kit/support-engine/internal/kb"
	"github.com/spec-kit/support-engine/internal/observability"
	"github.com/spec-kit/support-engine/internal/repository"
	apperrors "github.com/spec-kit/support-engine/pkg/util"
)

func testSchema() *intents.Schema {
	return intents.NewSchema(map[string]intents.Definition{
		"order_status": {
			RequiredFields: []string{"order_id"},
			Action:         "lookup_order",
			Anchors: []string{
				"where is my order",
				"order status",
				"has my order shipped",
				"track my order",
			},
		},
		"check_stock": {
			RequiredFields: []string{"product_name"},
			Action:         "check_stock",
			Anchors: []string{
				"do you have in stock",
				"is this item available",
			},
		},
		"password_reset": {
			RequiredFields: []string{"email"},
			Action:         "trigger_reset",
			Anchors: []string{
				"forgot my password",
				"reset my password",
			},
		},
	})
}

func testCatalog() datasource.Catalog {
	return datasource.Catalog{
		Orders: []datasource.Order{
			{OrderID: "#1001", Status: "Shipped", Tracking: "DHL-556677", DeliveryDate: "2025-11-14"},
		},
		Products: []datasource.Product{
			{ProductName: "Navy Jacket", Aliases: []string{"navy jacket"}, Stock: 14},
		},
		Users: []datasource.User{
			{Email: "john@example.com", Name: "John Doe"},
		},
	}
}

// stubRenderer produces deterministic drafts so tests can assert the branch
// that rendered them without parsing customer-facing prose.
type stubRenderer struct{}

func (stubRenderer) Render(name string, context map[string]any) (string, error) {
	parts := []string{name}
	if answer, ok := context["answer"].(string); ok {
		parts = append(parts, answer)
	}
	if missing, ok := context["missing_fields"].([]string); ok {
		parts = append(parts, strings.Join(missing, ","))
	}
	return strings.Join(parts, " "), nil
}

type stubChecker struct {
	ok  bool
	err error
}

func (c stubChecker) Vet(context.Context, string) (bool, error) { return c.ok, c.err }

type stubFAQ struct {
	match *domain.FAQMatch
	err   error
	panic bool
}

func (s stubFAQ) Match(context.Context, string) (*domain.FAQMatch, error) {
	if s.panic {
		panic("index out of range")
	}
	return s.match, s.err
}

// slowExtractor widens the window between load and save so interleaved
// turns would be visible as lost updates.
type slowExtractor struct {
	inner flow.Extractor
	delay time.Duration
}

func (s slowExtractor) Extract(ctx context.Context, text string, fields []string) (map[string]string, error) {
	time.Sleep(s.delay)
	return s.inner.Extract(ctx, text, fields)
}

type panickyRenderer struct{}

func (panickyRenderer) Render(string, map[string]any) (string, error) {
	panic("template is nil")
}

type failingClassifier struct{}

func (failingClassifier) Classify(context.Context, string) (domain.Classification, error) {
	return domain.Classification{}, errors.New("model offline")
}

type fixture struct {
	engine     *flow.Engine
	repo       *repository.MemoryTicketRepository
	metrics    *observability.Metrics
	dispatcher events.Dispatcher
}

func newFixture(t *testing.T, mutate func(*flow.Options, *flow.Dependencies)) *fixture {
	t.Helper()

	schema := testSchema()
	store := datasource.NewStore(testCatalog(), schema)
	repo := repository.NewMemoryTicketRepository()
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	opts := flow.Options{FAQThreshold: 0.60}
	deps := flow.Dependencies{
		Tickets:    repo,
		Locker:     flow.NewKeyedMutex(),
		Classifier: classifier.NewLexical(schema, 0.25),
		FAQ: kb.NewMatcher([]kb.Entry{{
			ID:        "faq-returns",
			Questions: []string{"what is your return policy"},
			Answer:    "Returns are free within 30 days.",
		}}),
		Extractor:  extractor.NewRegex(store.ExtractorProducts()),
		Source:     store,
		Renderer:   stubRenderer{},
		Checker:    compliance.NewLexicon(nil),
		Schema:     schema,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     zap.NewNop(),
	}
	if mutate != nil {
		mutate(&opts, &deps)
	}
	return &fixture{
		engine:     flow.NewEngine(opts, deps),
		repo:       repo,
		metrics:    metrics,
		dispatcher: dispatcher,
	}
}

func (f *fixture) ticket(t *testing.T, ref string) *domain.Ticket {
	t.Helper()
	ticket, err := f.repo.GetByRef(context.Background(), ref)
	require.NoError(t, err)
	return ticket
}

func TestNewConversationAsksForMissingField(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.engine.Handle(context.Background(), domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "Where is my order?",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ResponseKindReply, resp.Kind)
	assert.Equal(t, domain.TicketStatusPendingCustomer, resp.Status)
	assert.True(t, strings.HasPrefix(resp.Text, "request_info"))
	assert.Contains(t, resp.Text, "order_id")

	ticket := f.ticket(t, resp.TicketRef)
	assert.Equal(t, "order_status", ticket.Intent)
	assert.Empty(t, ticket.KnownFields)
	assert.Equal(t, 1, ticket.TurnCount)
	assert.EqualValues(t, 1, f.metrics.TurnCounts()[flow.BranchSlotFill])
}

func TestFollowUpSuppliesFieldAndResolves(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.engine.Handle(ctx, domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "Where is my order?",
	})
	require.NoError(t, err)

	second, err := f.engine.Handle(ctx, domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "It is #1001",
		TicketRef:  first.TicketRef,
	})
	require.NoError(t, err)

	assert.Equal(t, first.TicketRef, second.TicketRef)
	assert.Equal(t, domain.TicketStatusResolved, second.Status)
	assert.True(t, strings.HasPrefix(second.Text, "final_reply"))

	ticket := f.ticket(t, second.TicketRef)
	assert.Equal(t, "order_status", ticket.Intent)
	assert.Equal(t, "1001", ticket.KnownFields["order_id"])
	assert.Equal(t, 2, ticket.TurnCount)
	require.NotNil(t, ticket.ResolvedAt)
	assert.Equal(t, 2, f.repo.SaveCount())
}

func TestFAQFastPathResolvesWithoutIntent(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.engine.Handle(context.Background(), domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "What is your return policy?",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusResolved, resp.Status)
	assert.Contains(t, resp.Text, "Returns are free within 30 days.")

	ticket := f.ticket(t, resp.TicketRef)
	assert.Empty(t, ticket.Intent, "FAQ path must not lock an intent")
	require.NotNil(t, ticket.ResolvedAt)
	assert.EqualValues(t, 1, f.metrics.TurnCounts()[flow.BranchFAQ])
}

func TestFAQThresholdIsInclusive(t *testing.T) {
	cases := []struct {
		name   string
		score  float64
		branch string
	}{
		{"at threshold answers directly", 0.60, flow.BranchFAQ},
		{"just below falls through", 0.599, flow.BranchUnknownIntent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, func(_ *flow.Options, deps *flow.Dependencies) {
				deps.FAQ = stubFAQ{match: &domain.FAQMatch{
					EntryID: "faq-returns",
					Answer:  "Returns are free within 30 days.",
					Score:   tc.score,
				}}
			})

			_, err := f.engine.Handle(context.Background(), domain.InboundMessage{
				CustomerID: "john@example.com",
				Text:       "Can I send my purchase back to you?",
			})
			require.NoError(t, err)
			assert.EqualValues(t, 1, f.metrics.TurnCounts()[tc.branch], "score %v", tc.score)
		})
	}
}

func TestUnknownIntentEscalates(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.engine.Handle(context.Background(), domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "How do I fly to Mars?",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusActionRequired, resp.Status)
	assert.True(t, strings.HasPrefix(resp.Text, "unknown_intent"))

	ticket := f.ticket(t, resp.TicketRef)
	assert.Empty(t, ticket.Intent)
	assert.True(t, ticket.Flags.Escalated)
	assert.EqualValues(t, 1, f.metrics.TurnCounts()[flow.BranchUnknownIntent])
}

func TestMoodOverrideForcesAngryOnDelayedOrder(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.engine.Handle(context.Background(), domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "Great, I am still waiting for my order #1001",
	})
	require.NoError(t, err)

	ticket := f.ticket(t, resp.TicketRef)
	assert.Equal(t, domain.MoodAngry, ticket.Mood, "positive words next to delay cues must not read as happy")
	assert.Equal(t, domain.SeverityHigh, ticket.Severity)
	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
}

func TestUnmatchedRecordKeepsTicketOpen(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.engine.Handle(context.Background(), domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "Where is my order ORD-9999?",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusActionRequired, resp.Status)
	assert.True(t, strings.HasPrefix(resp.Text, "invalid_data"))

	ticket := f.ticket(t, resp.TicketRef)
	assert.Nil(t, ticket.ResolvedAt)
	assert.EqualValues(t, 1, f.metrics.TurnCounts()[flow.BranchInvalidData])
}

func TestIntentStaysLockedAcrossTurns(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.engine.Handle(ctx, domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "Where is my order?",
	})
	require.NoError(t, err)

	second, err := f.engine.Handle(ctx, domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "Also, do you have the navy jacket in stock?",
	})
	require.NoError(t, err)

	assert.Equal(t, first.TicketRef, second.TicketRef)
	ticket := f.ticket(t, second.TicketRef)
	assert.Equal(t, "order_status", ticket.Intent, "a later classification must not replace the locked intent")
	assert.Equal(t, domain.TicketStatusPendingCustomer, ticket.Status)
}

func TestKnownFieldsNeverRegress(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.engine.Handle(ctx, domain.InboundMessage{
		CustomerID: "maria@example.com",
		Text:       "I forgot my password, my email is maria@example.com",
	})
	require.NoError(t, err)

	// Same intent again with a different address in the text; the first
	// extraction must win.
	resp, err := f.engine.Handle(ctx, domain.InboundMessage{
		CustomerID: "maria@example.com",
		Text:       "I forgot my password again, reach me at other@example.com",
	})
	require.NoError(t, err)

	ticket := f.ticket(t, resp.TicketRef)
	assert.Equal(t, "maria@example.com", ticket.KnownFields["email"])
}

func TestEmptyInputHasNoSideEffects(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.engine.Handle(context.Background(), domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "   \n\t  ",
	})
	require.Error(t, err)

	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, "EMPTY_INPUT", domainErr.Code)
	assert.Equal(t, 0, f.repo.SaveCount())
}

func TestTicketRefValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.engine.Handle(ctx, domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "Where is my order?",
		TicketRef:  "not-a-ref",
	})
	require.Error(t, err)
	assert.Equal(t, "INVALID_TICKET_REF", apperrors.ToDomainError(err).Code)

	_, err = f.engine.Handle(ctx, domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "Where is my order?",
		TicketRef:  "TCK-00000000",
	})
	require.Error(t, err)
	assert.Equal(t, "INVALID_TICKET_REF", apperrors.ToDomainError(err).Code)
	assert.Equal(t, 0, f.repo.SaveCount())
}

func TestForeignTicketRefRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	resp, err := f.engine.Handle(ctx, domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "Where is my order?",
	})
	require.NoError(t, err)

	_, err = f.engine.Handle(ctx, domain.InboundMessage{
		CustomerID: "maria@example.com",
		Text:       "It is #1001",
		TicketRef:  resp.TicketRef,
	})
	require.Error(t, err)
	assert.Equal(t, "INVALID_TICKET_REF", apperrors.ToDomainError(err).Code)
}

func TestResolvedRefStartsFreshConversation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	resolved, err := f.engine.Handle(ctx, domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "What is your return policy?",
	})
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusResolved, resolved.Status)

	next, err := f.engine.Handle(ctx, domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "Where is my order?",
		TicketRef:  resolved.TicketRef,
	})
	require.NoError(t, err)
	assert.NotEqual(t, resolved.TicketRef, next.TicketRef, "a closed conversation must not reopen")
}

func TestCollaboratorErrorBecomesSystemErrorBranch(t *testing.T) {
	f := newFixture(t, func(_ *flow.Options, deps *flow.Dependencies) {
		deps.Classifier = failingClassifier{}
	})

	resp, err := f.engine.Handle(context.Background(), domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "Where is my order?",
	})
	require.NoError(t, err, "collaborator faults must not surface to the caller")

	assert.Equal(t, domain.TicketStatusActionRequired, resp.Status)
	assert.True(t, strings.HasPrefix(resp.Text, "system_error"))

	ticket := f.ticket(t, resp.TicketRef)
	assert.True(t, ticket.Flags.SystemError)
	assert.Equal(t, domain.SeverityHigh, ticket.Severity)
	assert.Equal(t, 1, f.repo.SaveCount())
	assert.EqualValues(t, 1, f.metrics.TurnCounts()[flow.BranchSystemError])
}

func TestCollaboratorPanicBecomesSystemErrorBranch(t *testing.T) {
	f := newFixture(t, func(_ *flow.Options, deps *flow.Dependencies) {
		deps.FAQ = stubFAQ{panic: true}
	})

	resp, err := f.engine.Handle(context.Background(), domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "What is your return policy?",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.Text, "system_error"))
	ticket := f.ticket(t, resp.TicketRef)
	assert.True(t, ticket.Flags.SystemError)
}

func TestComplianceFailureBlocksDraft(t *testing.T) {
	f := newFixture(t, func(_ *flow.Options, deps *flow.Dependencies) {
		deps.Checker = stubChecker{ok: false}
	})

	resp, err := f.engine.Handle(context.Background(), domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "What is your return policy?",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ResponseKindEscalation, resp.Kind)
	assert.NotContains(t, resp.Text, "Returns are free", "the blocked draft must never reach the customer")
	assert.Equal(t, domain.TicketStatusActionRequired, resp.Status)

	ticket := f.ticket(t, resp.TicketRef)
	assert.True(t, ticket.Flags.HumanReview)
	assert.Contains(t, ticket.Draft, "Returns are free", "the draft is retained for the reviewing agent")
	assert.Nil(t, ticket.ResolvedAt)
	assert.EqualValues(t, 1, f.metrics.TurnCounts()[flow.BranchComplianceBlocked])
}

func TestCheckerFaultFailsClosed(t *testing.T) {
	f := newFixture(t, func(_ *flow.Options, deps *flow.Dependencies) {
		deps.Checker = stubChecker{ok: true, err: errors.New("reviewer offline")}
	})

	resp, err := f.engine.Handle(context.Background(), domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "What is your return policy?",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseKindEscalation, resp.Kind)
}

func TestTurnEventsPublished(t *testing.T) {
	var seen []events.EventType
	f := newFixture(t, nil)
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTurnProcessed,
		events.EventTicketResolved,
		events.EventEscalationRaised,
		events.EventComplianceBlocked,
	} {
		eventType := eventType
		f.dispatcher.Subscribe(eventType, func(_ context.Context, event events.Event) error {
			seen = append(seen, event.Type)
			return nil
		})
	}

	_, err := f.engine.Handle(context.Background(), domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "What is your return policy?",
	})
	require.NoError(t, err)

	assert.Equal(t, []events.EventType{
		events.EventTicketCreated,
		events.EventTurnProcessed,
		events.EventTicketResolved,
	}, seen)
}

func TestConcurrentTurnsSameCustomerDoNotRace(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const turns = 8
	done := make(chan error, turns)
	for i := 0; i < turns; i++ {
		go func(i int) {
			_, err := f.engine.Handle(ctx, domain.InboundMessage{
				CustomerID: "john@example.com",
				Text:       fmt.Sprintf("Where is my order? (attempt %d)", i),
			})
			done <- err
		}(i)
	}
	for i := 0; i < turns; i++ {
		require.NoError(t, <-done)
	}

	ticket, err := f.repo.FindOpenByCustomer(ctx, "john@example.com")
	require.NoError(t, err)
	assert.Equal(t, turns, ticket.TurnCount, "every turn must observe the previous turn's state")
}

func TestRefAndBareTurnsSerializeOnOneTicket(t *testing.T) {
	f := newFixture(t, func(_ *flow.Options, deps *flow.Dependencies) {
		deps.Extractor = slowExtractor{inner: deps.Extractor, delay: 50 * time.Millisecond}
	})
	ctx := context.Background()

	opened, err := f.engine.Handle(ctx, domain.InboundMessage{
		CustomerID: "maria@example.com",
		Text:       "I forgot my password",
	})
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusPendingCustomer, opened.Status)

	// One follow-up threads by reference, the other arrives bare. Both
	// belong to the same open ticket and must apply in sequence.
	done := make(chan error, 2)
	go func() {
		_, err := f.engine.Handle(ctx, domain.InboundMessage{
			CustomerID: "maria@example.com",
			Text:       "My email is maria@example.com",
			TicketRef:  opened.TicketRef,
		})
		done <- err
	}()
	go func() {
		_, err := f.engine.Handle(ctx, domain.InboundMessage{
			CustomerID: "maria@example.com",
			Text:       "Still locked out over here",
		})
		done <- err
	}()
	for i := 0; i < 2; i++ {
		require.NoError(t, <-done)
	}

	ticket := f.ticket(t, opened.TicketRef)
	assert.Equal(t, 3, ticket.TurnCount, "neither follow-up may overwrite the other")
	assert.Equal(t, "maria@example.com", ticket.KnownFields["email"])
}

func TestPanickingRendererStillAnswers(t *testing.T) {
	f := newFixture(t, func(_ *flow.Options, deps *flow.Dependencies) {
		deps.Renderer = panickyRenderer{}
	})

	resp, err := f.engine.Handle(context.Background(), domain.InboundMessage{
		CustomerID: "john@example.com",
		Text:       "What is your return policy?",
	})
	require.NoError(t, err, "a renderer panic must not escape as a crash")

	assert.Contains(t, resp.Text, "technical problem")
	ticket := f.ticket(t, resp.TicketRef)
	assert.True(t, ticket.Flags.SystemError)
	assert.Equal(t, 1, f.repo.SaveCount())
}
