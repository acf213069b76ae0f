// Package workflow implements submission, approval, rejection, and
// withdrawal of point, voucher, and member-change requests.
//
// Every state change is a conditional write on status == pending, so two
// approvers deciding the same request cannot both succeed. Voucher approval
// additionally claims a pool entry in the same atomic batch, with its own
// precondition that the entry is still unused.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dalemusser/handspm/internal/app/notify"
	"github.com/dalemusser/handspm/internal/app/system/auditlog"
	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"github.com/dalemusser/handspm/internal/app/system/inputval"
	"github.com/dalemusser/handspm/internal/app/system/mailer"
	"github.com/dalemusser/handspm/internal/app/system/metrics"
	"github.com/dalemusser/handspm/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

var (
	ErrNotFound   = errors.New("request not found")
	ErrNotPending = errors.New("request is no longer pending")
	ErrForbidden  = errors.New("not allowed")
	ErrOutOfStock = errors.New("voucher pool is empty")
	// ErrConflict means every attempt lost a race for a pool entry. It is
	// the only retryable error.
	ErrConflict = errors.New("voucher approval conflicted; try again")
)

// DefaultVoucherAttempts bounds how often a voucher approval re-selects an
// entry after losing one to a concurrent approval.
const DefaultVoucherAttempts = 3

// Mailer queues an email without blocking.
type Mailer interface {
	Enqueue(e mailer.Email) bool
}

// Service runs the request workflows.
type Service struct {
	b        docstore.Backend
	notifier *notify.Notifier
	audit    *auditlog.Logger
	mail     Mailer
	siteName string
	log      *zap.Logger
	now      func() time.Time
	attempts int
}

// New creates a Service. audit and mail may be nil.
func New(b docstore.Backend, notifier *notify.Notifier, audit *auditlog.Logger, mail Mailer, siteName string, logger *zap.Logger) *Service {
	return &Service{
		b:        b,
		notifier: notifier,
		audit:    audit,
		mail:     mail,
		siteName: siteName,
		log:      logger,
		now:      func() time.Time { return time.Now().UTC() },
		attempts: DefaultVoucherAttempts,
	}
}

// SubmitInput carries the kind-specific request fields.
type SubmitInput struct {
	Points           int    `json:"points"`
	MemberIdentifier string `json:"member_identifier"`
	Reason           string `json:"reason"`
	CardID           string `json:"card_id"`
	ChangeType       string `json:"change_type"`
	Note             string `json:"note"`
}

type pointForm struct {
	Points           int    `validate:"gt=0" label:"點數"`
	MemberIdentifier string `validate:"required,max=50" label:"會員"`
}

type voucherForm struct {
	Reason string `validate:"required,voucherreason" label:"原因"`
}

type memberChangeForm struct {
	CardID     string `validate:"required,max=50" label:"卡號"`
	ChangeType string `validate:"required,memberchangetype" label:"異動類型"`
	Note       string `validate:"max=500" label:"備註"`
}

func (k Kind) validate(in SubmitInput) error {
	switch k {
	case KindPoint:
		return inputval.Validate(pointForm{in.Points, in.MemberIdentifier}).Err()
	case KindVoucher:
		return inputval.Validate(voucherForm{in.Reason}).Err()
	case KindMemberChange:
		return inputval.Validate(memberChangeForm{in.CardID, in.ChangeType, in.Note}).Err()
	}
	return inputval.New("kind", "申請類型不正確")
}

// Submit writes a pending request for actor and notifies the approvers of
// its kind. A notification failure does not fail the submission.
func (s *Service) Submit(ctx context.Context, actor authz.Actor, kind Kind, in SubmitInput) (models.Request, error) {
	in.MemberIdentifier = strings.TrimSpace(in.MemberIdentifier)
	in.CardID = strings.TrimSpace(in.CardID)
	in.Note = strings.TrimSpace(in.Note)
	if err := kind.validate(in); err != nil {
		return models.Request{}, err
	}

	req := models.Request{
		RequesterID:   actor.EmployeeID,
		RequesterName: actor.DisplayName,
		Department:    actor.Department,
		Status:        models.StatusPending,
		CreatedAt:     s.now(),
	}
	switch kind {
	case KindPoint:
		req.Points = in.Points
		req.MemberIdentifier = in.MemberIdentifier
	case KindVoucher:
		req.Reason = in.Reason
	case KindMemberChange:
		req.CardID = in.CardID
		req.ChangeType = in.ChangeType
		req.Note = in.Note
	}
	data, err := docstore.Encode(req)
	if err != nil {
		return models.Request{}, err
	}
	id, err := s.b.Create(ctx, kind.Collection(), data)
	if err != nil {
		return models.Request{}, fmt.Errorf("submit %s request: %w", kind, err)
	}
	req.ID = id
	metrics.RequestsSubmitted.WithLabelValues(string(kind)).Inc()

	users, err := s.notifier.Users(ctx)
	if err != nil {
		s.log.Warn("load approvers failed", zap.String("kind", string(kind)), zap.Error(err))
		return req, nil
	}
	event := notify.NewEvent(models.NotificationSystem, fmt.Sprintf("%s 提交了%s申請", actor.DisplayName, kind.Label()), "")
	if _, err := s.notifier.NotifyGroup(ctx, event, users, kind.IsApprover); err != nil {
		s.log.Warn("notify approvers failed", zap.String("request_id", id), zap.Error(err))
	}
	return req, nil
}

// List returns the requests of kind that actor may see, newest first.
func (s *Service) List(ctx context.Context, actor authz.Actor, kind Kind) ([]models.Request, error) {
	var match bson.M
	if !actor.Perms.CanSeeAllRequests {
		match = bson.M{"requester_id": actor.EmployeeID}
	}
	docs, err := s.b.Find(ctx, kind.Collection(), match)
	if err != nil {
		return nil, err
	}
	out, err := docstore.DecodeAll[models.Request](docs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Service) get(ctx context.Context, kind Kind, id string) (models.Request, error) {
	d, err := s.b.Get(ctx, kind.Collection(), id)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.Request{}, ErrNotFound
	}
	if err != nil {
		return models.Request{}, err
	}
	var r models.Request
	if err := d.Decode(&r); err != nil {
		return models.Request{}, err
	}
	return r, nil
}

// Process approves or rejects a pending request and returns it as decided.
func (s *Service) Process(ctx context.Context, actor authz.Actor, kind Kind, id string, approve bool) (out models.Request, err error) {
	defer func() {
		metrics.RequestDecisions.WithLabelValues(string(kind), outcome(out, err)).Inc()
	}()

	if !kind.CanApprove(actor.Perms) {
		return models.Request{}, ErrForbidden
	}
	req, err := s.get(ctx, kind, id)
	if err != nil {
		return models.Request{}, err
	}
	if req.Status != models.StatusPending {
		return models.Request{}, ErrNotPending
	}

	now := s.now()
	status := models.StatusRejected
	if approve {
		status = models.StatusApproved
	}
	fields := bson.M{
		"status":       status,
		"approved_by":  actor.DisplayName,
		"approver_id":  actor.UID,
		"completed_at": now,
	}

	if kind == KindVoucher && approve {
		code, err := s.claimVoucher(ctx, id, fields)
		if err != nil {
			return models.Request{}, err
		}
		req.AssignedCode = code
	} else {
		err := s.b.Batch(ctx, []docstore.Op{{
			Kind:       docstore.OpUpdate,
			Collection: kind.Collection(),
			ID:         id,
			Data:       fields,
			Match:      bson.M{"status": models.StatusPending},
		}})
		if err != nil {
			return models.Request{}, s.decisionErr(err)
		}
	}

	req.Status = status
	req.ApprovedBy = actor.DisplayName
	req.ApproverID = actor.UID
	req.CompletedAt = &now

	s.afterDecision(ctx, actor, kind, req, approve)
	return req, nil
}

func outcome(r models.Request, err error) string {
	switch {
	case err == nil:
		return r.Status
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotPending):
		return "not_pending"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	return "error"
}

// claimVoucher assigns an unused pool entry to request id in one batch.
func (s *Service) claimVoucher(ctx context.Context, id string, fields bson.M) (string, error) {
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			metrics.VoucherRetries.Inc()
		}
		d, err := s.b.FindOne(ctx, models.CollVoucherPool, bson.M{"is_used": false})
		if errors.Is(err, docstore.ErrNotFound) {
			return "", ErrOutOfStock
		}
		if err != nil {
			return "", fmt.Errorf("select voucher: %w", err)
		}
		var entry models.VoucherEntry
		if err := d.Decode(&entry); err != nil {
			return "", err
		}

		reqFields := bson.M{"assigned_code": entry.Code}
		for k, v := range fields {
			reqFields[k] = v
		}
		err = s.b.Batch(ctx, []docstore.Op{
			{
				Kind:       docstore.OpUpdate,
				Collection: models.CollVoucherRequests,
				ID:         id,
				Data:       reqFields,
				Match:      bson.M{"status": models.StatusPending},
			},
			{
				Kind:       docstore.OpUpdate,
				Collection: models.CollVoucherPool,
				ID:         entry.ID,
				Data:       bson.M{"is_used": true, "assigned_to_request_id": id},
				Match:      bson.M{"is_used": false},
			},
		})
		if err == nil {
			return entry.Code, nil
		}

		// A conflict on the request means someone else decided it first;
		// losing the entry (taken or removed) means pick another.
		var ce *docstore.ConflictError
		if errors.As(err, &ce) && ce.Collection == models.CollVoucherPool {
			continue
		}
		if errors.Is(err, docstore.ErrNotFound) {
			if _, gerr := s.b.Get(ctx, models.CollVoucherRequests, id); errors.Is(gerr, docstore.ErrNotFound) {
				return "", ErrNotFound
			}
			continue
		}
		return "", s.decisionErr(err)
	}
	return "", ErrConflict
}

func (s *Service) decisionErr(err error) error {
	switch {
	case errors.Is(err, docstore.ErrConflict):
		return ErrNotPending
	case errors.Is(err, docstore.ErrNotFound):
		return ErrNotFound
	}
	return fmt.Errorf("record decision: %w", err)
}

// DecisionMessage is the notification text sent to the requester.
func DecisionMessage(kind Kind, approved bool, code string) string {
	verdict := "已駁回"
	if approved {
		verdict = "已核准"
	}
	detail := ""
	if kind == KindVoucher && approved {
		detail = "，券號：" + code
	}
	return fmt.Sprintf("您的%s申請%s%s", kind.Label(), verdict, detail)
}

// afterDecision runs the side effects of a committed decision. None of them
// can undo it.
func (s *Service) afterDecision(ctx context.Context, actor authz.Actor, kind Kind, req models.Request, approved bool) {
	requester, found := s.requester(ctx, req.RequesterID)

	if found {
		event := notify.NewEvent(models.NotificationSystem, DecisionMessage(kind, approved, req.AssignedCode), "")
		if err := s.notifier.Notify(ctx, event, requester.ID); err != nil {
			s.log.Warn("decision notification failed",
				zap.String("request_id", req.ID),
				zap.Error(err))
		}
	} else {
		s.log.Warn("requester not found; decision not notified",
			zap.String("request_id", req.ID),
			zap.String("requester_id", req.RequesterID))
	}

	verdict := "駁回"
	if approved {
		verdict = "核准"
	}
	details := fmt.Sprintf("%s%s申請 (申請人: %s)", verdict, kind.Label(), req.RequesterName)
	if req.AssignedCode != "" {
		details += ", 券號: " + req.AssignedCode
	}
	s.audit.As(ctx, actor, auditlog.ActionReview, details)

	if found && requester.Email != "" && s.mail != nil {
		e := mailer.BuildDecisionEmail(mailer.DecisionEmailData{
			SiteName:      s.siteName,
			RecipientName: requester.DisplayName,
			KindLabel:     kind.Label(),
			Approved:      approved,
			Code:          req.AssignedCode,
			ApproverName:  actor.DisplayName,
		})
		e.To = requester.Email
		if !s.mail.Enqueue(e) {
			s.log.Warn("decision email dropped", zap.String("request_id", req.ID))
		}
	}
}

func (s *Service) requester(ctx context.Context, employeeID string) (models.User, bool) {
	d, err := s.b.FindOne(ctx, models.CollUsers, bson.M{"employee_id": employeeID})
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			s.log.Warn("load requester failed", zap.String("employee_id", employeeID), zap.Error(err))
		}
		return models.User{}, false
	}
	var u models.User
	if err := d.Decode(&u); err != nil {
		return models.User{}, false
	}
	return u, true
}

// Withdraw deletes actor's own pending request.
func (s *Service) Withdraw(ctx context.Context, actor authz.Actor, kind Kind, id string) error {
	req, err := s.get(ctx, kind, id)
	if err != nil {
		return err
	}
	if req.RequesterID != actor.EmployeeID {
		return ErrForbidden
	}
	if req.Status != models.StatusPending {
		return ErrNotPending
	}
	err = s.b.Batch(ctx, []docstore.Op{{
		Kind:       docstore.OpDelete,
		Collection: kind.Collection(),
		ID:         id,
		Match:      bson.M{"status": models.StatusPending, "requester_id": actor.EmployeeID},
	}})
	if err != nil {
		return s.decisionErr(err)
	}
	return nil
}
