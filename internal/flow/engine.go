// Package flow implements the conversation orchestration state machine. For
// every inbound message the engine decides whether to answer instantly from
// the knowledge base, ask for missing information, resolve against the data
// source, or escalate to a human, and carries that decision across turns on
// a durable ticket. The engine itself is stateless between invocations; the
// ticket is the sole carrier of conversational memory.
package flow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/events"
	"github.com/spec-kit/support-engine/internal/observability"
	"github.com/spec-kit/support-engine/internal/repository"
	apperrors "github.com/spec-kit/support-engine/pkg/util"
)

// Collaborator boundaries. Each is an opaque function to the engine; the
// built-in implementations live in their own packages and remote services
// can replace any of them.
type (
	// Classifier maps raw text to an intent and mood verdict.
	Classifier interface {
		Classify(ctx context.Context, text string) (domain.Classification, error)
	}

	// FAQMatcher finds the best knowledge-base answer for a question.
	// A nil match means the knowledge base had no candidate at all.
	FAQMatcher interface {
		Match(ctx context.Context, question string) (*domain.FAQMatch, error)
	}

	// Extractor pulls the requested fields out of raw text. Absent keys
	// mean "not found".
	Extractor interface {
		Extract(ctx context.Context, text string, fields []string) (map[string]string, error)
	}

	// DataSource resolves an intent with a complete field set.
	DataSource interface {
		Lookup(ctx context.Context, intent string, fields map[string]string) (domain.LookupResult, error)
	}

	// Renderer fills a named template with a context mapping.
	Renderer interface {
		Render(name string, context map[string]any) (string, error)
	}

	// ComplianceChecker vets a drafted outbound text.
	ComplianceChecker interface {
		Vet(ctx context.Context, text string) (bool, error)
	}

	// Schema is the static intent → required-fields lookup table.
	Schema interface {
		Required(intent string) ([]string, bool)
	}
)

// Template names the engine renders. Every outbound text comes from one of
// these, and every draft passes the compliance gate before leaving.
const (
	TemplateFAQReply      = "faq_reply"
	TemplateRequestInfo   = "request_info"
	TemplateFinalReply    = "final_reply"
	TemplateInvalidData   = "invalid_data"
	TemplateUnknownIntent = "unknown_intent"
	TemplateSystemError   = "system_error"
)

// Turn outcome branches, used for events and metrics.
const (
	BranchFAQ               = "faq"
	BranchSlotFill          = "slot_fill"
	BranchResolved          = "resolved"
	BranchInvalidData       = "invalid_data"
	BranchUnknownIntent     = "unknown_intent"
	BranchSystemError       = "system_error"
	BranchComplianceBlocked = "compliance_blocked"
)

// escalationNotice is the fixed text a caller receives instead of a blocked
// draft. It is deliberately template-free: it must not be able to fail.
const escalationNotice = "Thank you for reaching out. Your request has been passed to a support agent, who will follow up with you shortly."

// systemErrorFallback covers the corner where even the system-error template
// cannot be rendered.
const systemErrorFallback = "We hit a technical problem while handling your message. A support agent will follow up with you shortly."

// Options tunes engine behavior.
type Options struct {
	// FAQThreshold is the inclusive knowledge-base similarity score above
	// which a question is answered directly. Below it, a false-positive FAQ
	// answer is judged more costly than falling through to classification.
	FAQThreshold float64
	// Overrides are applied in order to the raw mood prediction.
	Overrides []OverrideRule
}

// DefaultFAQThreshold is the precision/recall trade-off the engine ships with.
const DefaultFAQThreshold = 0.60

// Dependencies bundles collaborators for the engine.
type Dependencies struct {
	Tickets    repository.TicketRepository
	Locker     Locker
	Classifier Classifier
	FAQ        FAQMatcher
	Extractor  Extractor
	Source     DataSource
	Renderer   Renderer
	Checker    ComplianceChecker
	Schema     Schema
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// Engine drives one conversation turn end to end.
type Engine struct {
	opts       Options
	tickets    repository.TicketRepository
	locker     Locker
	classifier Classifier
	faq        FAQMatcher
	extractor  Extractor
	source     DataSource
	renderer   Renderer
	checker    ComplianceChecker
	schema     Schema
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	nowFunc    func() time.Time
}

// NewEngine constructs the engine.
func NewEngine(opts Options, deps Dependencies) *Engine {
	if opts.FAQThreshold <= 0 {
		opts.FAQThreshold = DefaultFAQThreshold
	}
	if opts.Overrides == nil {
		opts.Overrides = DefaultOverrides()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		opts:       opts,
		tickets:    deps.Tickets,
		locker:     deps.Locker,
		classifier: deps.Classifier,
		faq:        deps.FAQ,
		extractor:  deps.Extractor,
		source:     deps.Source,
		renderer:   deps.Renderer,
		checker:    deps.Checker,
		schema:     deps.Schema,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

var ticketRefPattern = regexp.MustCompile(`^TCK-[A-Z0-9]{8}$`)

// turnResult is a drafted response plus the branch that produced it. The
// ticket has already been mutated to the state the branch implies; nothing
// is persisted until the single save at the end of the turn.
type turnResult struct {
	draft  string
	branch string
}

// Handle processes one inbound message and returns the outbound response.
// Input errors (empty text, bad ticket reference) surface as domain errors
// with no side effects; collaborator faults never do, they become a gated
// system-error response on a flagged ticket.
func (e *Engine) Handle(ctx context.Context, msg domain.InboundMessage) (*domain.OutboundResponse, error) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil, apperrors.NewEmptyInput()
	}

	msg.TicketRef = strings.TrimSpace(msg.TicketRef)
	if msg.TicketRef != "" && !ticketRefPattern.MatchString(msg.TicketRef) {
		return nil, apperrors.NewInvalidTicketRef(msg.TicketRef)
	}

	// Turns serialize on the customer id: a ref-threaded turn and a bare
	// turn from the same customer contend for the same open ticket, so
	// they must contend for the same lock.
	release, err := e.locker.Acquire(ctx, msg.CustomerID)
	if err != nil {
		return nil, err
	}
	defer release()

	ticket, created, err := e.resolveTicket(ctx, msg)
	if err != nil {
		return nil, err
	}
	ticket.TurnCount++

	result, err := e.safeTurn(ctx, ticket, text)
	if err != nil {
		result = e.systemErrorTurn(ticket, err)
	}

	response := &domain.OutboundResponse{
		TicketID:  ticket.ID,
		TicketRef: ticket.Ref,
		Kind:      domain.ResponseKindReply,
		Text:      result.draft,
	}

	blocked := e.gate(ctx, ticket, result)
	if blocked {
		result.branch = BranchComplianceBlocked
		response.Kind = domain.ResponseKindEscalation
		response.Text = escalationNotice
	}
	response.Status = ticket.Status

	if err := e.tickets.Save(ctx, ticket); err != nil {
		return nil, fmt.Errorf("save ticket %s: %w", ticket.ID, err)
	}

	e.metrics.RecordTurn(result.branch)
	e.publishTurnEvents(ctx, ticket, created, result, blocked)
	e.logger.Info("turn processed",
		zap.String("ticket_ref", ticket.Ref),
		zap.String("branch", result.branch),
		zap.String("status", string(ticket.Status)),
		zap.String("mood", string(ticket.Mood)),
		zap.Int("turn", ticket.TurnCount),
	)
	return response, nil
}

// resolveTicket loads the conversation the message belongs to, or starts a
// new one. An explicit reference must be known and owned by the sender; a
// resolved referenced ticket starts a fresh conversation so a closed issue
// never reopens by accident.
func (e *Engine) resolveTicket(ctx context.Context, msg domain.InboundMessage) (*domain.Ticket, bool, error) {
	if ref := msg.TicketRef; ref != "" {
		ticket, err := e.tickets.GetByRef(ctx, ref)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, apperrors.NewInvalidTicketRef(ref)
		}
		if err != nil {
			return nil, false, err
		}
		if ticket.CustomerID != msg.CustomerID {
			return nil, false, apperrors.NewInvalidTicketRef(ref)
		}
		if ticket.Status != domain.TicketStatusResolved {
			return ticket, false, nil
		}
	}

	ticket, err := e.tickets.FindOpenByCustomer(ctx, msg.CustomerID)
	if err == nil {
		return ticket, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}
	return domain.NewTicket(msg.CustomerID), true, nil
}

// safeTurn runs the routing branches, converting collaborator panics into
// errors so a misbehaving plugin cannot crash a turn.
func (e *Engine) safeTurn(ctx context.Context, ticket *domain.Ticket, text string) (result turnResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("collaborator panic: %v", r)
		}
	}()
	return e.runBranches(ctx, ticket, text)
}

// runBranches is the state machine proper: FAQ fast path, classification,
// unknown-intent handling, extraction, completeness check, resolution.
func (e *Engine) runBranches(ctx context.Context, ticket *domain.Ticket, text string) (turnResult, error) {
	// FAQ fast path, only while no intent is locked. Never touches the
	// data source and never enters slot-filling.
	if ticket.Intent == "" {
		match, err := e.faq.Match(ctx, text)
		if err != nil {
			return turnResult{}, fmt.Errorf("knowledge base: %w", err)
		}
		if match != nil && match.Score >= e.opts.FAQThreshold {
			cls, err := e.classifier.Classify(ctx, text)
			if err != nil {
				return turnResult{}, fmt.Errorf("classifier: %w", err)
			}
			e.applyMood(ticket, cls, text)
			draft, err := e.renderer.Render(TemplateFAQReply, map[string]any{
				"customer_name": customerName(ticket.CustomerID),
				"mood":          string(ticket.Mood),
				"answer":        match.Answer,
			})
			if err != nil {
				return turnResult{}, fmt.Errorf("render faq reply: %w", err)
			}
			ticket.Resolve(e.nowFunc())
			return turnResult{draft: draft, branch: BranchFAQ}, nil
		}
	}

	cls, err := e.classifier.Classify(ctx, text)
	if err != nil {
		return turnResult{}, fmt.Errorf("classifier: %w", err)
	}
	e.applyMood(ticket, cls, text)
	ticket.LockIntent(cls.Intent)

	if ticket.Intent == "" {
		return e.unknownIntentTurn(ticket)
	}
	required, ok := e.schema.Required(ticket.Intent)
	if !ok {
		// Intent the schema does not know routes like unknown.
		return e.unknownIntentTurn(ticket)
	}

	extracted, err := e.extractor.Extract(ctx, text, required)
	if err != nil {
		return turnResult{}, fmt.Errorf("extractor: %w", err)
	}
	ticket.MergeFields(extracted)
	ticket.Severity = SeverityFor(ticket.Mood)

	evaluation := EvaluateSlots(required, ticket.KnownFields)
	if !evaluation.Complete {
		ticket.Status = domain.TicketStatusPendingCustomer
		draft, err := e.renderer.Render(TemplateRequestInfo, map[string]any{
			"customer_name":  customerName(ticket.CustomerID),
			"mood":           string(ticket.Mood),
			"missing_fields": evaluation.Missing,
		})
		if err != nil {
			return turnResult{}, fmt.Errorf("render request info: %w", err)
		}
		return turnResult{draft: draft, branch: BranchSlotFill}, nil
	}

	lookup, err := e.source.Lookup(ctx, ticket.Intent, ticket.KnownFields)
	if err != nil {
		return turnResult{}, fmt.Errorf("data source: %w", err)
	}
	if lookup.Outcome != domain.LookupFound {
		// The customer must correct their input; the ticket stays open.
		ticket.Status = domain.TicketStatusActionRequired
		draft, err := e.renderer.Render(TemplateInvalidData, map[string]any{
			"customer_name": customerName(ticket.CustomerID),
			"mood":          string(ticket.Mood),
			"fields":        ticket.KnownFields,
		})
		if err != nil {
			return turnResult{}, fmt.Errorf("render invalid data: %w", err)
		}
		return turnResult{draft: draft, branch: BranchInvalidData}, nil
	}

	draft, err := e.renderer.Render(TemplateFinalReply, map[string]any{
		"customer_name": customerName(ticket.CustomerID),
		"mood":          string(ticket.Mood),
		"intent":        ticket.Intent,
		"record":        lookup.Record,
	})
	if err != nil {
		return turnResult{}, fmt.Errorf("render final reply: %w", err)
	}
	ticket.Resolve(e.nowFunc())
	return turnResult{draft: draft, branch: BranchResolved}, nil
}

func (e *Engine) unknownIntentTurn(ticket *domain.Ticket) (turnResult, error) {
	ticket.Status = domain.TicketStatusActionRequired
	ticket.Flags.Escalated = true
	draft, err := e.renderer.Render(TemplateUnknownIntent, map[string]any{
		"customer_name": customerName(ticket.CustomerID),
	})
	if err != nil {
		return turnResult{}, fmt.Errorf("render unknown intent: %w", err)
	}
	return turnResult{draft: draft, branch: BranchUnknownIntent}, nil
}

// systemErrorTurn is the outer catch for collaborator faults: the ticket is
// flagged for operators, forced open at high severity, and the customer
// gets the system-error text. The fault is logged, never re-raised.
func (e *Engine) systemErrorTurn(ticket *domain.Ticket, cause error) turnResult {
	e.logger.Error("collaborator failure",
		zap.String("ticket_ref", ticket.Ref),
		zap.Error(cause),
	)
	ticket.Status = domain.TicketStatusActionRequired
	ticket.Flags.SystemError = true
	ticket.Severity = domain.SeverityHigh

	return turnResult{draft: e.renderSystemError(ticket), branch: BranchSystemError}
}

// renderSystemError produces the system-error text. Render errors and
// panics are both absorbed; the constant fallback covers them.
func (e *Engine) renderSystemError(ticket *domain.Ticket) (draft string) {
	draft = systemErrorFallback
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("system error template panicked",
				zap.String("ticket_ref", ticket.Ref),
				zap.Any("cause", r),
			)
		}
	}()
	rendered, err := e.renderer.Render(TemplateSystemError, map[string]any{
		"customer_name": customerName(ticket.CustomerID),
	})
	if err == nil {
		draft = rendered
	}
	return draft
}

// gate runs the compliance check over the drafted text. On failure (or a
// checker fault, which fails closed) the draft is retained on the ticket
// for a human agent and the ticket is flagged for review.
func (e *Engine) gate(ctx context.Context, ticket *domain.Ticket, result turnResult) bool {
	ok, err := e.checker.Vet(ctx, result.draft)
	if err != nil {
		e.logger.Error("compliance checker failure", zap.String("ticket_ref", ticket.Ref), zap.Error(err))
		ok = false
	}
	if ok {
		ticket.Draft = ""
		return false
	}
	ticket.Status = domain.TicketStatusActionRequired
	ticket.Flags.HumanReview = true
	ticket.Draft = result.draft
	if ticket.ResolvedAt != nil {
		ticket.ResolvedAt = nil
	}
	return true
}

func (e *Engine) applyMood(ticket *domain.Ticket, cls domain.Classification, text string) {
	mood := cls.Mood
	if mood == "" {
		mood = domain.MoodUnknown
	}
	mood, rule := ApplyOverrides(mood, text, e.opts.Overrides)
	if rule != "" {
		e.logger.Debug("mood override applied",
			zap.String("ticket_ref", ticket.Ref),
			zap.String("rule", rule),
			zap.String("from", string(cls.Mood)),
			zap.String("to", string(mood)),
		)
	}
	ticket.Mood = mood
	ticket.Severity = SeverityFor(mood)
}

func (e *Engine) publishTurnEvents(ctx context.Context, ticket *domain.Ticket, created bool, result turnResult, blocked bool) {
	if e.dispatcher == nil {
		return
	}
	if created {
		e.publish(ctx, ticket, events.EventTicketCreated, events.TicketCreatedPayload{
			Mood:     ticket.Mood,
			Severity: ticket.Severity,
		})
	}
	e.publish(ctx, ticket, events.EventTurnProcessed, events.TurnProcessedPayload{
		Turn:     ticket.TurnCount,
		Branch:   result.branch,
		Status:   ticket.Status,
		Mood:     ticket.Mood,
		Severity: ticket.Severity,
	})
	switch {
	case blocked:
		e.publish(ctx, ticket, events.EventComplianceBlocked, events.ComplianceBlockedPayload{
			DraftPreview: preview(ticket.Draft, 120),
		})
	case ticket.Status == domain.TicketStatusResolved:
		e.publish(ctx, ticket, events.EventTicketResolved, events.TicketResolvedPayload{
			Intent: ticket.Intent,
			Turns:  ticket.TurnCount,
		})
	case result.branch == BranchUnknownIntent || result.branch == BranchSystemError:
		e.publish(ctx, ticket, events.EventEscalationRaised, events.EscalationRaisedPayload{
			Reason:   result.branch,
			Severity: ticket.Severity,
		})
	}
}

func (e *Engine) publish(ctx context.Context, ticket *domain.Ticket, eventType events.EventType, payload any) {
	err := e.dispatcher.Publish(ctx, events.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		TicketID:   ticket.ID,
		TicketRef:  ticket.Ref,
		CustomerID: ticket.CustomerID,
		Timestamp:  e.nowFunc(),
		Payload:    payload,
	})
	if err != nil {
		e.logger.Warn("event handler failed", zap.String("event", string(eventType)), zap.Error(err))
	}
}

// customerName guesses a salutation from the customer id: the local part of
// an email address, title-cased.
func customerName(customerID string) string {
	name := customerID
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	name = strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(name)
	words := strings.Fields(name)
	for i, word := range words {
		first, size := utf8.DecodeRuneInString(word)
		words[i] = strings.ToUpper(string(first)) + word[size:]
	}
	if len(words) == 0 {
		return "Customer"
	}
	return strings.Join(words, " ")
}

func preview(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
