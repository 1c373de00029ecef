package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tokmz/huddle/pkg/auth"
	errs "github.com/tokmz/huddle/pkg/errors"
	"github.com/tokmz/huddle/pkg/logger"
	"github.com/tokmz/huddle/pkg/tracing"
)

// Dispatcher 事件分发与广播路由
// 同一发送方的帧由其读协程顺序调用 Handle，每个接收方队列先进先出，
// 因此同一发送方在同一房间内的事件按接收顺序送达
type Dispatcher struct {
	registry *Registry
	rooms    *RoomManager
	events   *LifecycleBus
	metrics  Metrics
	archiver Archiver
	policy   JoinPolicy
	validate *validator.Validate
	log      logger.Logger
	now      func() time.Time
}

func newDispatcher(registry *Registry, rooms *RoomManager, events *LifecycleBus, cfg *Config) *Dispatcher {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	policy := cfg.JoinPolicy
	if policy == nil {
		policy = AllowAll
	}
	return &Dispatcher{
		registry: registry,
		rooms:    rooms,
		events:   events,
		metrics:  cfg.Metrics,
		archiver: cfg.Archiver,
		policy:   policy,
		validate: v,
		log:      cfg.Logger,
		now:      time.Now,
	}
}

// Handle 处理一个上行帧，返回的错误只回给发送方
func (d *Dispatcher) Handle(c *Conn, f *Frame) error {
	ctx, span := tracing.StartSpan(c.ctx, "ws.dispatch",
		tracing.AttrConnID.String(c.id),
		tracing.AttrKind.String(string(f.Kind)),
		tracing.AttrRoomID.String(f.RoomID),
	)
	defer span.End()

	err := d.handle(ctx, c, f)
	if err != nil {
		tracing.RecordError(span, err)
		d.metrics.IncrementRejected(f.Kind, errs.CodeOf(err))
		d.events.Publish(LifecycleEvent{
			Type:        LifecycleEventRejected,
			ConnID:      c.id,
			PrincipalID: c.principal.ID,
			RoomID:      f.RoomID,
			Kind:        f.Kind,
			Err:         err,
		})
	}
	return err
}

func (d *Dispatcher) handle(ctx context.Context, c *Conn, f *Frame) error {
	now := d.now()

	// 发送方身份只取自注册表
	sender, ok := d.registry.Get(c.id)
	if !ok || sender != c || c.IsClosed() {
		return ErrConnClosed
	}

	switch f.Kind {
	case KindJoinRoom:
		return d.join(ctx, c, f.RoomID)
	case KindLeaveRoom:
		return d.leave(ctx, c, f.RoomID)
	}

	ks, ok := kinds[f.Kind]
	if !ok {
		return ErrValidation.WithMessage(msgUnknownKind)
	}
	if ks.serverOnly {
		return ErrValidation.WithMessage(msgServerKind)
	}
	if ks.scope == scopeRoom && strings.TrimSpace(f.RoomID) == "" {
		return ErrValidation.WithMessage(msgRoomRequired)
	}
	if ks.serviceOnly && !c.principal.HasRole(auth.RoleService) {
		return ErrForbidden.WithMessage(msgServiceOnly)
	}

	value, payload, err := d.decode(ks, f.Payload)
	if err != nil {
		return err
	}

	switch ks.scope {
	case scopeRoom:
		if IsPrincipalRoom(f.RoomID) {
			return ErrForbidden.WithMessage(msgReservedRoom)
		}
		if !d.rooms.IsMember(c.id, f.RoomID) {
			return ErrForbidden.WithMessage(msgNotMember)
		}
		ev := d.newEvent(f.Kind, c.principal, c.id, f.RoomID, payload, now)
		exclude := ""
		if ks.excludeSender {
			exclude = c.id
		}
		d.deliver(ctx, ev, d.rooms.Members(f.RoomID), exclude)
		if msg, ok := value.(*MessagePayload); ok && d.archiver != nil {
			d.archiver.Archive(ctx, ev, msg.Text)
		}

	case scopePrincipal:
		np := value.(*NotifyPayload)
		ev := d.newEvent(f.Kind, c.principal, c.id, "", payload, now)
		d.deliver(ctx, ev, d.rooms.Members(PrincipalRoom(np.PrincipalID)), "")

	case scopeAll:
		ev := d.newEvent(f.Kind, c.principal, c.id, "", payload, now)
		d.deliver(ctx, ev, d.registry.Snapshot(), "")
	}
	return nil
}

// Notify 服务端投递 principal.notify，返回送达的连接数
func (d *Dispatcher) Notify(ctx context.Context, from auth.Principal, principalID, typ string, data json.RawMessage) (int, error) {
	now := d.now()
	raw, err := json.Marshal(NotifyPayload{PrincipalID: principalID, Type: typ, Data: data})
	if err != nil {
		return 0, ErrValidation.WithError(err)
	}
	value, payload, err := d.decode(kinds[KindPrincipalNotify], raw)
	if err != nil {
		return 0, err
	}
	np := value.(*NotifyPayload)
	ev := d.newEvent(KindPrincipalNotify, from, "", "", payload, now)
	return d.deliver(ctx, ev, d.rooms.Members(PrincipalRoom(np.PrincipalID)), ""), nil
}

// Announce 服务端投递 broadcast.announce，返回送达的连接数
func (d *Dispatcher) Announce(ctx context.Context, from auth.Principal, typ string, data json.RawMessage) (int, error) {
	now := d.now()
	raw, err := json.Marshal(AnnouncePayload{Type: typ, Data: data})
	if err != nil {
		return 0, ErrValidation.WithError(err)
	}
	_, payload, err := d.decode(kinds[KindAnnounce], raw)
	if err != nil {
		return 0, err
	}
	ev := d.newEvent(KindAnnounce, from, "", "", payload, now)
	return d.deliver(ctx, ev, d.registry.Snapshot(), ""), nil
}

func (d *Dispatcher) join(ctx context.Context, c *Conn, roomID string) error {
	if strings.TrimSpace(roomID) == "" {
		return ErrValidation.WithMessage(msgRoomRequired)
	}
	if IsPrincipalRoom(roomID) {
		return ErrForbidden.WithMessage(msgReservedRoom)
	}
	if err := d.policy.AllowJoin(ctx, c.principal, roomID); err != nil {
		var e *Error
		if errors.As(err, &e) {
			return e
		}
		return ErrForbidden.WithMessage(msgJoinDenied).WithError(err)
	}

	joined, err := d.rooms.Join(c, roomID)
	if err != nil || !joined {
		return err
	}
	d.events.Publish(LifecycleEvent{Type: LifecycleRoomJoined, ConnID: c.id, PrincipalID: c.principal.ID, RoomID: roomID})
	d.presence(ctx, KindPresenceJoined, c, roomID)
	return nil
}

func (d *Dispatcher) leave(ctx context.Context, c *Conn, roomID string) error {
	if strings.TrimSpace(roomID) == "" {
		return ErrValidation.WithMessage(msgRoomRequired)
	}
	if IsPrincipalRoom(roomID) {
		return ErrForbidden.WithMessage(msgReservedRoom)
	}
	if !d.rooms.Leave(c.id, roomID) {
		return nil
	}
	d.events.Publish(LifecycleEvent{Type: LifecycleRoomLeft, ConnID: c.id, PrincipalID: c.principal.ID, RoomID: roomID})
	d.presence(ctx, KindPresenceLeft, c, roomID)
	return nil
}

// presence 通知房间内其他成员，私有房间不发
func (d *Dispatcher) presence(ctx context.Context, kind Kind, subject *Conn, roomID string) int {
	if IsPrincipalRoom(roomID) {
		return 0
	}
	ev := d.newEvent(kind, subject.principal, subject.id, roomID, nil, d.now())
	return d.deliver(ctx, ev, d.rooms.Members(roomID), subject.id)
}

// decode 解析并校验载荷，返回规范化后的 JSON
func (d *Dispatcher) decode(ks kindSpec, raw json.RawMessage) (any, json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil, ErrValidation.WithMessage(msgPayloadRequired)
	}
	if ks.payload == nil {
		if !json.Valid(raw) {
			return nil, nil, ErrValidation.WithMessage(msgMalformed)
		}
		return nil, raw, nil
	}

	v := ks.payload()
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, nil, ErrValidation.WithMessage(msgMalformed)
	}
	if err := d.validate.Struct(v); err != nil {
		return nil, nil, ErrValidation.WithMessage(validationMessage(err))
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return nil, nil, ErrValidation.WithError(err)
	}
	return v, canonical, nil
}

func validationMessage(err error) string {
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		fe := ves[0]
		return fmt.Sprintf("payload.%s failed on %s", fe.Field(), fe.Tag())
	}
	return err.Error()
}

func (d *Dispatcher) newEvent(kind Kind, from auth.Principal, connID, roomID string, payload json.RawMessage, ts time.Time) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		SenderID:   from.ID,
		SenderName: from.Name,
		RoomID:     roomID,
		Payload:    payload,
		Timestamp:  ts.UTC(),
		senderConn: connID,
	}
}

// deliver 非阻塞投递，已关闭的连接跳过，队列满的连接丢弃本事件
func (d *Dispatcher) deliver(ctx context.Context, ev *Event, audience []*Conn, exclude string) int {
	data, err := json.Marshal(ev)
	if err != nil {
		d.log.ErrorContext(ctx, "encode event failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
		return 0
	}

	start := time.Now()
	delivered := 0
	for _, c := range audience {
		if c.id == exclude {
			continue
		}
		switch err := c.enqueue(data); {
		case err == nil:
			delivered++
		case errors.Is(err, ErrQueueFull):
			d.metrics.IncrementDropped(ev.Kind)
			d.log.WarnContext(ctx, "slow consumer, event dropped",
				zap.String("recipient", c.id),
				zap.String("kind", string(ev.Kind)),
			)
		}
	}

	d.metrics.IncrementEvents(ev.Kind)
	d.metrics.RecordFanout(ev.Kind, delivered, time.Since(start))
	tracing.Annotate(ctx, tracing.AttrRecipients.Int(delivered))
	return delivered
}
