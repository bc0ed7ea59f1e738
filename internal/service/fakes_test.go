package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// In-memory repository fakes. They mimic the persistence semantics the
// services rely on: lookups return detached copies, updates overwrite by
// primary key, and missing rows surface gorm.ErrRecordNotFound.

type memTxManager struct{}

func (memTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

// --- invoices ---

type memInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]model.Invoice
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{invoices: make(map[uuid.UUID]model.Invoice)}
}

func (r *memInvoiceRepo) Create(ctx context.Context, invoice *model.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}
	r.invoices[invoice.ID] = *invoice
	return nil
}

func (r *memInvoiceRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := inv
	return &out, nil
}

func (r *memInvoiceRepo) FindByNumber(ctx context.Context, invoiceNumber string) (*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.InvoiceNumber == invoiceNumber {
			out := inv
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memInvoiceRepo) List(ctx context.Context, filter repository.InvoiceListFilter) ([]model.Invoice, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Invoice
	for _, inv := range r.invoices {
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if filter.MatchStatus != "" && inv.MatchStatus != filter.MatchStatus {
			continue
		}
		if filter.MSMEOnly && !inv.IsMSMESupplier {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceNumber < out[j].InvoiceNumber })
	return out, int64(len(out)), nil
}

func (r *memInvoiceRepo) ListMSME(ctx context.Context) ([]model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Invoice
	for _, inv := range r.invoices {
		if inv.IsMSMESupplier {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].MSMEDaysRemaining, out[j].MSMEDaysRemaining
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return *di < *dj
		}
	})
	return out, nil
}

func (r *memInvoiceRepo) Update(ctx context.Context, invoice *model.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invoices[invoice.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.invoices[invoice.ID] = *invoice
	return nil
}

func (r *memInvoiceRepo) CountByPrefix(ctx context.Context, prefix string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, inv := range r.invoices {
		if strings.HasPrefix(inv.InvoiceNumber, prefix) {
			count++
		}
	}
	return count, nil
}

// --- suppliers ---

type memSupplierRepo struct {
	suppliers map[uuid.UUID]model.Supplier
}

func newMemSupplierRepo() *memSupplierRepo {
	return &memSupplierRepo{suppliers: make(map[uuid.UUID]model.Supplier)}
}

func (r *memSupplierRepo) add(s model.Supplier) model.Supplier {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.suppliers[s.ID] = s
	return s
}

func (r *memSupplierRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Supplier, error) {
	s, ok := r.suppliers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := s
	return &out, nil
}

func (r *memSupplierRepo) FindByCode(ctx context.Context, code string) (*model.Supplier, error) {
	for _, s := range r.suppliers {
		if s.Code == code {
			out := s
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memSupplierRepo) List(ctx context.Context, page, limit int) ([]model.Supplier, int64, error) {
	var out []model.Supplier
	for _, s := range r.suppliers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, int64(len(out)), nil
}

// --- purchase orders and GRNs ---

type memPORepo struct {
	pos  map[uuid.UUID]model.PurchaseOrder
	grns map[uuid.UUID]model.GoodsReceiptNote
}

func newMemPORepo() *memPORepo {
	return &memPORepo{
		pos:  make(map[uuid.UUID]model.PurchaseOrder),
		grns: make(map[uuid.UUID]model.GoodsReceiptNote),
	}
}

func (r *memPORepo) addPO(po model.PurchaseOrder) model.PurchaseOrder {
	if po.ID == uuid.Nil {
		po.ID = uuid.New()
	}
	r.pos[po.ID] = po
	return po
}

func (r *memPORepo) addGRN(grn model.GoodsReceiptNote) model.GoodsReceiptNote {
	if grn.ID == uuid.Nil {
		grn.ID = uuid.New()
	}
	r.grns[grn.ID] = grn
	return grn
}

func (r *memPORepo) FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	po, ok := r.pos[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := po
	return &out, nil
}

func (r *memPORepo) FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	return r.FindByID(ctx, id)
}

func (r *memPORepo) List(ctx context.Context, page, limit int) ([]model.PurchaseOrder, int64, error) {
	var out []model.PurchaseOrder
	for _, po := range r.pos {
		out = append(out, po)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PONumber < out[j].PONumber })
	return out, int64(len(out)), nil
}

func (r *memPORepo) FindGRNByID(ctx context.Context, id uuid.UUID) (*model.GoodsReceiptNote, error) {
	grn, ok := r.grns[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := grn
	return &out, nil
}

func (r *memPORepo) FindGRNByIDWithItems(ctx context.Context, id uuid.UUID) (*model.GoodsReceiptNote, error) {
	return r.FindGRNByID(ctx, id)
}

// --- GST cache ---

type memGSTRepo struct {
	records map[string]model.GSTRecord
	failErr error // when set, every lookup fails with it
}

func newMemGSTRepo() *memGSTRepo {
	return &memGSTRepo{records: make(map[string]model.GSTRecord)}
}

func (r *memGSTRepo) add(rec model.GSTRecord) model.GSTRecord {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	r.records[rec.GSTIN] = rec
	return rec
}

func (r *memGSTRepo) FindByGSTIN(ctx context.Context, gstin string) (*model.GSTRecord, error) {
	if r.failErr != nil {
		return nil, r.failErr
	}
	rec, ok := r.records[gstin]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (r *memGSTRepo) List(ctx context.Context) ([]model.GSTRecord, error) {
	if r.failErr != nil {
		return nil, r.failErr
	}
	var out []model.GSTRecord
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GSTIN < out[j].GSTIN })
	return out, nil
}

func (r *memGSTRepo) Update(ctx context.Context, record *model.GSTRecord) error {
	if r.failErr != nil {
		return r.failErr
	}
	r.records[record.GSTIN] = *record
	return nil
}

// --- match results and exceptions ---

type memMatchRepo struct {
	mu         sync.Mutex
	results    []model.MatchResult
	exceptions map[uuid.UUID]model.MatchingException
	seq        time.Time
}

func newMemMatchRepo() *memMatchRepo {
	return &memMatchRepo{
		exceptions: make(map[uuid.UUID]model.MatchingException),
		seq:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *memMatchRepo) nextTime() time.Time {
	r.seq = r.seq.Add(time.Second)
	return r.seq
}

func (r *memMatchRepo) CreateResult(ctx context.Context, result *model.MatchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	result.CreatedAt = r.nextTime()
	r.results = append(r.results, *result)
	return nil
}

func (r *memMatchRepo) LatestResultForInvoice(ctx context.Context, invoiceID uuid.UUID) (*model.MatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.results) - 1; i >= 0; i-- {
		if r.results[i].InvoiceID == invoiceID {
			out := r.results[i]
			return &out, nil
		}
	}
	return nil, nil
}

func (r *memMatchRepo) ListResults(ctx context.Context) ([]model.MatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.MatchResult, len(r.results))
	copy(out, r.results)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memMatchRepo) CreateException(ctx context.Context, exc *model.MatchingException) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if exc.ID == uuid.Nil {
		exc.ID = uuid.New()
	}
	exc.CreatedAt = r.nextTime()
	r.exceptions[exc.ID] = *exc
	return nil
}

func (r *memMatchRepo) FindExceptionByID(ctx context.Context, id uuid.UUID) (*model.MatchingException, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exc, ok := r.exceptions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := exc
	return &out, nil
}

func (r *memMatchRepo) FindExceptionByResultID(ctx context.Context, resultID uuid.UUID) (*model.MatchingException, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, exc := range r.exceptions {
		if exc.MatchResultID == resultID {
			out := exc
			return &out, nil
		}
	}
	return nil, nil
}

func (r *memMatchRepo) ListExceptions(ctx context.Context, openOnly bool) ([]model.MatchingException, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.MatchingException
	for _, exc := range r.exceptions {
		if openOnly && exc.Resolution != nil {
			continue
		}
		out = append(out, exc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memMatchRepo) UpdateException(ctx context.Context, exc *model.MatchingException) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.exceptions[exc.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.exceptions[exc.ID] = *exc
	return nil
}

func (r *memMatchRepo) Summary(ctx context.Context) (repository.MatchSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var summary repository.MatchSummary
	summary.TotalMatches = int64(len(r.results))
	for _, mr := range r.results {
		switch mr.Status {
		case model.MatchPassed:
			summary.Passed++
		case model.MatchException:
			summary.Exceptions++
		case model.MatchBlockedFraud:
			summary.BlockedFraud++
		}
	}
	for _, exc := range r.exceptions {
		if exc.Resolution == nil {
			summary.OpenExceptions++
		}
	}
	return summary, nil
}
