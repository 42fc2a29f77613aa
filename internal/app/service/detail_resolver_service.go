package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/internal/metrics"
	"github.com/ikkim/catalog-admin/pkg/catalogapi"
	"github.com/ikkim/catalog-admin/pkg/logger"
)

var (
	ErrSessionNotFound = errors.New("detail session not found")
	ErrSessionBusy     = errors.New("detail session is waiting for the catalog")
	ErrStaleResponse   = errors.New("response superseded by a newer request")
	ErrInvalidPrice    = errors.New("price must be a number greater than 0")
	ErrInvalidQuantity = errors.New("quantity must be a whole number of 0 or more")
)

type OpenSessionInput struct {
	DetailID uint
	Color    string
	Size     string
}

// DetailResolverService edits the price and stock of one live SKU row while
// the admin swaps between its colors and sizes.
type DetailResolverService interface {
	Open(ctx context.Context, input OpenSessionInput, userID uint) (*model.DetailSession, error)
	Get(id string) (*model.DetailSession, error)
	ChangeColor(ctx context.Context, id, color string) (*model.DetailSession, error)
	ChangeSize(ctx context.Context, id, size string) (*model.DetailSession, error)
	SelectImage(id string, index int) (*model.DetailSession, error)
	Save(ctx context.Context, id string, price, quantity float64) (*model.SaveResult, error)
	Close(id string) error
	ExpireIdle(olderThan time.Duration) int
}

// sessionEntry guards one session. seq tags every outgoing request; a
// response is applied only while its tag is still the latest.
type sessionEntry struct {
	mu      sync.Mutex
	seq     uint64
	session model.DetailSession
}

type detailResolverService struct {
	api   DetailAPI
	vocab VocabularyService

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	now      func() time.Time
}

func NewDetailResolverService(api DetailAPI, vocab VocabularyService) DetailResolverService {
	return &detailResolverService{
		api:      api,
		vocab:    vocab,
		sessions: make(map[string]*sessionEntry),
		now:      time.Now,
	}
}

func (s *detailResolverService) lookup(id string) (*sessionEntry, error) {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry, nil
}

func (s *detailResolverService) Open(ctx context.Context, input OpenSessionInput, userID uint) (*model.DetailSession, error) {
	resp, err := s.api.GetProductByColorPublic(ctx, input.DetailID, input.Color, input.Size)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := model.DetailSession{
		ID:                uuid.NewString(),
		DetailID:          input.DetailID,
		State:             model.SessionIdle,
		SelectedColor:     resp.ActiveColor,
		SelectedSize:      resp.ActiveSize,
		Price:             resp.Price,
		Quantity:          resp.Quantity,
		MapSizeToQuantity: resp.MapSizeToQuantity,
		VariantColors:     resp.VariantColors,
		VariantSizes:      resp.VariantSizes,
		Images:            resp.Images,
		Grid:              make(model.SparseGrid),
		OpenedBy:          userID,
		OpenedAt:          now,
		UpdatedAt:         now,
	}
	if resp.DetailID != 0 {
		sess.DetailID = resp.DetailID
	}
	if sess.SelectedColor == "" {
		sess.SelectedColor = input.Color
	}
	if sess.SelectedSize == "" {
		sess.SelectedSize = input.Size
	}
	if q, ok := sess.MapSizeToQuantity.Get(sess.SelectedSize); ok {
		sess.Quantity = q
	}
	observe(s.vocabulary(ctx), &sess)

	s.mu.Lock()
	s.sessions[sess.ID] = &sessionEntry{session: sess}
	s.mu.Unlock()
	metrics.DetailSessionsOpen.Inc()

	logger.Info("Detail session opened", map[string]interface{}{
		"session_id": sess.ID,
		"detail_id":  sess.DetailID,
		"user_id":    userID,
	})
	out := sess.Clone()
	return &out, nil
}

func (s *detailResolverService) Get(id string) (*model.DetailSession, error) {
	entry, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	out := entry.session.Clone()
	return &out, nil
}

// begin moves an idle session to state and returns the request tag.
func (s *detailResolverService) begin(entry *sessionEntry, state model.SessionState) (uint64, model.DetailSession, error) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	switch entry.session.State {
	case model.SessionIdle:
	case model.SessionClosed:
		return 0, model.DetailSession{}, ErrSessionNotFound
	default:
		return 0, model.DetailSession{}, ErrSessionBusy
	}
	entry.seq++
	entry.session.State = state
	entry.session.UpdatedAt = s.now()
	return entry.seq, entry.session.Clone(), nil
}

// finish re-acquires the entry for a response tagged seq. It returns with the
// lock held unless the response is stale.
func (s *detailResolverService) finish(entry *sessionEntry, seq uint64, op string) error {
	entry.mu.Lock()
	if entry.seq != seq || entry.session.State == model.SessionClosed {
		entry.mu.Unlock()
		metrics.StaleResponses.WithLabelValues(op).Inc()
		logger.Debug("Discarding stale detail response", map[string]interface{}{
			"session_id": entry.session.ID,
			"operation":  op,
			"seq":        seq,
		})
		return ErrStaleResponse
	}
	entry.session.State = model.SessionIdle
	entry.session.UpdatedAt = s.now()
	return nil
}

func (s *detailResolverService) ChangeColor(ctx context.Context, id, color string) (*model.DetailSession, error) {
	entry, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	seq, snap, err := s.begin(entry, model.SessionResolving)
	if err != nil {
		return nil, err
	}

	resp, callErr := s.api.GetSizesByColor(ctx, snap.DetailID, color)
	vocab := s.vocabulary(ctx)

	if err := s.finish(entry, seq, "change_color"); err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()
	sess := &entry.session

	if callErr != nil {
		sess.LastError = errorMessage(callErr)
		logger.FromContext(ctx).Warn("Color change failed", map[string]interface{}{
			"session_id": id,
			"color":      color,
			"error":      callErr.Error(),
		})
		return nil, callErr
	}

	sess.LastError = ""
	sess.SelectedColor = color
	sess.Price = resp.Price
	sess.MapSizeToQuantity = resp.MapSizeToQuantity
	if first, ok := resp.MapSizeToQuantity.First(); ok {
		sess.SelectedSize = first.Size
		sess.Quantity = first.Quantity
	} else {
		sess.SelectedSize = ""
		sess.Quantity = resp.Quantity
	}
	if resp.DetailID != 0 {
		sess.DetailID = resp.DetailID
	}
	sess.Images = resp.Images
	sess.ImageIndex = 0
	observe(vocab, sess)

	out := sess.Clone()
	return &out, nil
}

func (s *detailResolverService) ChangeSize(ctx context.Context, id, size string) (*model.DetailSession, error) {
	entry, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	seq, snap, err := s.begin(entry, model.SessionResolving)
	if err != nil {
		return nil, err
	}

	resp, callErr := s.api.GetProductByColorPublic(ctx, snap.DetailID, snap.SelectedColor, size)
	vocab := s.vocabulary(ctx)

	if err := s.finish(entry, seq, "change_size"); err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()
	sess := &entry.session

	if callErr != nil {
		sess.LastError = errorMessage(callErr)
		logger.FromContext(ctx).Warn("Size change failed", map[string]interface{}{
			"session_id": id,
			"size":       size,
			"error":      callErr.Error(),
		})
		return nil, callErr
	}

	sess.LastError = ""
	sess.SelectedSize = size
	if resp.ActiveSize != "" {
		sess.SelectedSize = resp.ActiveSize
	}
	sess.Price = resp.Price
	if len(resp.MapSizeToQuantity) > 0 {
		sess.MapSizeToQuantity = resp.MapSizeToQuantity
	}
	if q, ok := sess.MapSizeToQuantity.Get(sess.SelectedSize); ok {
		sess.Quantity = q
	} else {
		sess.Quantity = resp.Quantity
	}
	if resp.DetailID != 0 {
		sess.DetailID = resp.DetailID
	}
	if len(resp.VariantSizes) > 0 {
		sess.VariantSizes = resp.VariantSizes
	}
	if len(resp.Images) > 0 {
		sess.Images = resp.Images
		sess.ImageIndex = 0
	}
	observe(vocab, sess)

	out := sess.Clone()
	return &out, nil
}

func (s *detailResolverService) SelectImage(id string, index int) (*model.DetailSession, error) {
	entry, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if index < 0 || index >= len(entry.session.Images) {
		return nil, model.ErrImageIndexOutOfRange
	}
	entry.session.ImageIndex = index
	out := entry.session.Clone()
	return &out, nil
}

// Save writes price and quantity for the selected color and size. Both names
// must resolve to vocabulary ids; there is no fallback id.
func (s *detailResolverService) Save(ctx context.Context, id string, price, quantity float64) (*model.SaveResult, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return nil, ErrInvalidPrice
	}
	if !model.IsWholeQuantity(quantity) {
		return nil, ErrInvalidQuantity
	}

	entry, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	seq, snap, err := s.begin(entry, model.SessionSaving)
	if err != nil {
		return nil, err
	}

	req := catalogapi.UpdateDetailRequest{
		Price:    model.NewMoney(price),
		Quantity: int(quantity),
	}
	var resp *catalogapi.ActionResponse
	color, callErr := s.vocab.ResolveColor(ctx, snap.SelectedColor)
	if callErr == nil {
		req.ColorID = color.ID
		var size model.VariantSize
		size, callErr = s.vocab.ResolveSize(ctx, snap.SelectedSize)
		req.SizeID = size.ID
	}
	if callErr == nil {
		resp, callErr = s.api.UpdateProductDetailAdmin(ctx, snap.DetailID, req)
	}
	if callErr == nil {
		callErr = resp.Err()
	}

	if err := s.finish(entry, seq, "save"); err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()
	sess := &entry.session

	if callErr != nil {
		sess.LastError = errorMessage(callErr)
		logger.FromContext(ctx).Warn("Detail save failed", map[string]interface{}{
			"session_id": id,
			"detail_id":  snap.DetailID,
			"error":      callErr.Error(),
		})
		return nil, callErr
	}

	sess.State = model.SessionClosed
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	metrics.DetailSessionsOpen.Dec()

	logger.FromContext(ctx).Info("Detail saved", map[string]interface{}{
		"session_id": id,
		"detail_id":  snap.DetailID,
		"color_id":   req.ColorID,
		"size_id":    req.SizeID,
		"quantity":   req.Quantity,
	})
	return &model.SaveResult{DetailID: snap.DetailID, Price: req.Price, Quantity: req.Quantity}, nil
}

func (s *detailResolverService) Close(id string) error {
	s.mu.Lock()
	entry, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	entry.mu.Lock()
	entry.seq++
	entry.session.State = model.SessionClosed
	entry.mu.Unlock()
	metrics.DetailSessionsOpen.Dec()
	return nil
}

// ExpireIdle closes sessions not touched for olderThan. A request still in
// flight for an expired session is discarded when it returns.
func (s *detailResolverService) ExpireIdle(olderThan time.Duration) int {
	cutoff := s.now().Add(-olderThan)

	s.mu.RLock()
	entries := make(map[string]*sessionEntry, len(s.sessions))
	for id, entry := range s.sessions {
		entries[id] = entry
	}
	s.mu.RUnlock()

	var expired []string
	for id, entry := range entries {
		entry.mu.Lock()
		if entry.session.UpdatedAt.Before(cutoff) {
			expired = append(expired, id)
		}
		entry.mu.Unlock()
	}

	n := 0
	for _, id := range expired {
		if s.Close(id) == nil {
			n++
		}
	}
	if n > 0 {
		logger.Info("Expired idle detail sessions", map[string]interface{}{
			"count": n,
		})
	}
	return n
}

// vocabulary is fetched while the session is still resolving so the entry
// lock is never held across a catalog call. Nil means unavailable.
func (s *detailResolverService) vocabulary(ctx context.Context) *model.Vocabulary {
	if s.vocab == nil {
		return nil
	}
	vocab, err := s.vocab.Get(ctx)
	if err != nil {
		return nil
	}
	return vocab
}

// observe records the selected cell in the session grid when both names are
// known to the vocabulary.
func observe(vocab *model.Vocabulary, sess *model.DetailSession) {
	if vocab == nil || sess.SelectedColor == "" || sess.SelectedSize == "" {
		return
	}
	color, ok := vocab.ColorByName(sess.SelectedColor)
	if !ok {
		return
	}
	size, ok := vocab.SizeByName(sess.SelectedSize)
	if !ok {
		return
	}
	if sess.Grid == nil {
		sess.Grid = make(model.SparseGrid)
	}
	sess.Grid.Set(color.ID, size.ID, model.GridCell{Price: sess.Price, Quantity: sess.Quantity})
}

func errorMessage(err error) string {
	if msg := catalogapi.UpstreamMessage(err); msg != "" {
		return msg
	}
	return fmt.Sprint(err)
}
