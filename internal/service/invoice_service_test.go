package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"backend/internal/events"
	"backend/internal/model"
	"backend/pkg/apperr"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memLogStore captures the audit entries the bus writes synchronously.
type memLogStore struct {
	mu      sync.Mutex
	entries []model.EventLog
}

func (s *memLogStore) Append(ctx context.Context, entry *model.EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *memLogStore) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Name)
	}
	return out
}

type lifecycleFixture struct {
	invoiceRepo  *memInvoiceRepo
	supplierRepo *memSupplierRepo
	poRepo       *memPORepo
	gstRepo      *memGSTRepo
	matchRepo    *memMatchRepo
	logStore     *memLogStore
	bus          *events.Bus
	matching     MatchingService
	svc          InvoiceService
	supplier     model.Supplier
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	f := &lifecycleFixture{
		invoiceRepo:  newMemInvoiceRepo(),
		supplierRepo: newMemSupplierRepo(),
		poRepo:       newMemPORepo(),
		gstRepo:      newMemGSTRepo(),
		matchRepo:    newMemMatchRepo(),
		logStore:     &memLogStore{},
	}
	f.bus = events.NewBus(f.logStore)
	f.supplier = f.supplierRepo.add(model.Supplier{
		Code:         "SUP001",
		LegalName:    "Micro Widgets Pvt Ltd",
		GSTIN:        "29ABCDE1234F1Z5",
		IsMSME:       true,
		MSMECategory: model.MSMECategoryMicro,
		Status:       model.SupplierActive,
	})
	f.matching = NewMatchingService(f.invoiceRepo, f.matchRepo, f.poRepo, f.supplierRepo, memTxManager{}, f.bus)
	f.svc = NewInvoiceService(f.invoiceRepo, f.supplierRepo, f.poRepo, f.gstRepo, f.matching, memTxManager{}, f.bus, DefaultMSMEReferenceRate)
	return f
}

// seedInvoice inserts an invoice directly at a given lifecycle status.
func (f *lifecycleFixture) seedInvoice(t *testing.T, number, status string, mutate func(*model.Invoice)) *model.Invoice {
	t.Helper()
	date := time.Now().UTC().AddDate(0, 0, -10)
	inv := &model.Invoice{
		InvoiceNumber:  number,
		SupplierID:     f.supplier.ID,
		InvoiceDate:    &date,
		Subtotal:       decimal.NewFromInt(100000),
		TotalAmount:    decimal.NewFromInt(118000),
		NetPayable:     decimal.NewFromInt(116000),
		GSTINSupplier:  f.supplier.GSTIN,
		Status:         status,
		MatchStatus:    model.MatchStatusPending,
		EBSAPStatus:    model.EBSAPNotStarted,
		IsMSMESupplier: true,
		MSMECategory:   model.MSMECategoryMicro,
	}
	if mutate != nil {
		mutate(inv)
	}
	require.NoError(t, f.invoiceRepo.Create(context.Background(), inv))
	return inv
}

func TestCreateInvoice_ComputesAmountsAndSnapshots(t *testing.T) {
	f := newLifecycleFixture(t)

	inv, err := f.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		SupplierID:  f.supplier.ID.String(),
		InvoiceDate: "2024-06-01",
		Subtotal:    "100000",
		GSTRate:     "18",
		TDSRate:     "2",
		UploadedBy:  "ap.clerk",
	})
	require.NoError(t, err)

	assert.Equal(t, model.InvoiceCaptured, inv.Status)
	assert.Equal(t, "100000.00", inv.Subtotal)
	assert.Equal(t, "18000.00", inv.GSTAmount)
	assert.Equal(t, "2000.00", inv.TDSAmount)
	assert.Equal(t, "118000.00", inv.TotalAmount)
	assert.Equal(t, "116000.00", inv.NetPayable)

	// Supplier snapshot taken at capture.
	assert.True(t, inv.IsMSMESupplier)
	assert.Equal(t, model.MSMECategoryMicro, inv.MSMECategory)
	assert.Equal(t, "29ABCDE1234F1Z5", inv.GSTINSupplier)
	assert.Equal(t, "SUP001", inv.SupplierCode)

	wantPrefix := "INV-" + time.Now().UTC().Format("20060102") + "-"
	assert.Equal(t, wantPrefix+"00001", inv.InvoiceNumber)

	second, err := f.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		SupplierID:  f.supplier.ID.String(),
		InvoiceDate: "2024-06-02",
		Subtotal:    "5000",
	})
	require.NoError(t, err)
	assert.Equal(t, wantPrefix+"00002", second.InvoiceNumber)
}

func TestCreateInvoice_RejectsBadInput(t *testing.T) {
	f := newLifecycleFixture(t)

	_, err := f.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		SupplierID:  "not-a-uuid",
		InvoiceDate: "2024-06-01",
		Subtotal:    "100",
	})
	assert.True(t, apperr.IsValidation(err))

	_, err = f.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		SupplierID:  "11111111-1111-1111-1111-111111111111",
		InvoiceDate: "2024-06-01",
		Subtotal:    "100",
	})
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		SupplierID:  f.supplier.ID.String(),
		InvoiceDate: "01/06/2024",
		Subtotal:    "100",
	})
	assert.True(t, apperr.IsValidation(err))
}

func TestTransition_IllegalActionLeavesStatusUnchanged(t *testing.T) {
	f := newLifecycleFixture(t)
	f.seedInvoice(t, "INV002", model.InvoiceCaptured, nil)

	_, err := f.svc.Approve(context.Background(), "INV002", "manager")
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
	assert.Equal(t,
		"Cannot approve invoice INV002: current status is CAPTURED, expected one of MATCHED, PENDING_APPROVAL",
		err.Error())

	stored, err := f.invoiceRepo.FindByNumber(context.Background(), "INV002")
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceCaptured, stored.Status)
}

func TestExtract_SetsConfidenceAndAdvances(t *testing.T) {
	f := newLifecycleFixture(t)
	f.seedInvoice(t, "INV003", model.InvoiceCaptured, nil)

	inv, err := f.svc.Extract(context.Background(), "INV003")
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceExtracted, inv.Status)
	require.NotNil(t, inv.OCRConfidence)
	assert.Equal(t, simulatedOCRConfidence, *inv.OCRConfidence)

	// Re-invoking an already-performed transition fails.
	_, err = f.svc.Extract(context.Background(), "INV003")
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))

	assert.Contains(t, f.logStore.names(), events.EventInvoiceExtracted)
}

func TestValidate_WithCachedGSTRecord(t *testing.T) {
	f := newLifecycleFixture(t)
	synced := time.Now().UTC().Add(-48 * time.Hour)
	f.gstRepo.add(model.GSTRecord{
		GSTIN:       "29ABCDE1234F1Z5",
		Status:      model.GSTRecordActive,
		ITCEligible: true,
		LastSynced:  &synced,
	})
	f.seedInvoice(t, "INV004", model.InvoiceExtracted, nil)

	inv, err := f.svc.Validate(context.Background(), "INV004")
	require.NoError(t, err)

	assert.Equal(t, model.InvoiceValidated, inv.Status)
	assert.Equal(t, model.GSTCacheValid, inv.GSTINCacheStatus)
	require.NotNil(t, inv.GSTR2BITCEligible)
	assert.True(t, *inv.GSTR2BITCEligible)
	require.NotNil(t, inv.GSTINCacheAgeHours)
	assert.InDelta(t, 48, *inv.GSTINCacheAgeHours, 0.1)

	record, err := f.gstRepo.FindByGSTIN(context.Background(), "29ABCDE1234F1Z5")
	require.NoError(t, err)
	assert.Equal(t, 1, record.CacheHitCount)
}

func TestValidate_GSTINAbsentFromCacheIsNonFatal(t *testing.T) {
	f := newLifecycleFixture(t)
	f.seedInvoice(t, "INV005", model.InvoiceExtracted, nil)

	inv, err := f.svc.Validate(context.Background(), "INV005")
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceValidated, inv.Status)
	assert.Equal(t, model.GSTCacheNotInCache, inv.GSTINCacheStatus)
	assert.Nil(t, inv.GSTR2BITCEligible)
}

func TestValidate_CacheLookupFailureLeavesInvoiceExtracted(t *testing.T) {
	f := newLifecycleFixture(t)
	f.gstRepo.failErr = errors.New("connection refused")
	f.seedInvoice(t, "INV006", model.InvoiceExtracted, nil)

	inv, err := f.svc.Validate(context.Background(), "INV006")
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceExtracted, inv.Status)

	// Retry succeeds once the cache recovers.
	f.gstRepo.failErr = nil
	inv, err = f.svc.Validate(context.Background(), "INV006")
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceValidated, inv.Status)
}

func TestMatch_PassedAdvancesToMatched(t *testing.T) {
	f := newLifecycleFixture(t)
	po := f.poRepo.addPO(model.PurchaseOrder{PONumber: "PO2024-001", SupplierID: f.supplier.ID, Amount: decimal.NewFromInt(100000)})
	f.seedInvoice(t, "INV007", model.InvoiceValidated, func(inv *model.Invoice) {
		inv.POID = &po.ID
	})

	inv, err := f.svc.Match(context.Background(), "INV007", model.MatchType2Way)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceMatched, inv.Status)
	assert.Equal(t, "2WAY_MATCH_PASSED", inv.MatchStatus)
}

func TestMatch_ExceptionDoesNotAdvance(t *testing.T) {
	f := newLifecycleFixture(t)
	po := f.poRepo.addPO(model.PurchaseOrder{PONumber: "PO2024-001", SupplierID: f.supplier.ID, Amount: decimal.NewFromInt(100000)})
	f.seedInvoice(t, "INV008", model.InvoiceValidated, func(inv *model.Invoice) {
		inv.POID = &po.ID
		inv.Subtotal = decimal.NewFromInt(120000)
	})

	inv, err := f.svc.Match(context.Background(), "INV008", model.MatchType2Way)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceValidated, inv.Status)
	assert.Equal(t, "2WAY_MATCH_EXCEPTION", inv.MatchStatus)
	assert.NotEmpty(t, inv.MatchExceptionReason)
}

func TestMatch_OverrideApprovedAdvancesWithoutRerun(t *testing.T) {
	f := newLifecycleFixture(t)
	po := f.poRepo.addPO(model.PurchaseOrder{PONumber: "PO2024-002", SupplierID: f.supplier.ID, Amount: decimal.NewFromInt(100000)})
	f.seedInvoice(t, "INV014", model.InvoiceValidated, func(inv *model.Invoice) {
		inv.POID = &po.ID
		inv.FraudFlag = true
		inv.FraudReasons = []string{"Duplicate bank account"}
	})

	inv, err := f.svc.Match(context.Background(), "INV014", model.MatchType2Way)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceValidated, inv.Status)
	assert.Equal(t, model.MatchStatusBlockedFraud, inv.MatchStatus)

	excs, err := f.matching.ListExceptions(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, excs, 1)

	_, err = f.matching.ResolveException(context.Background(), excs[0].ID, ResolveExceptionRequest{
		Resolution: model.ResolutionApprovedOverride,
		ResolvedBy: "cfo",
		Notes:      "Vendor cleared by fraud team",
	})
	require.NoError(t, err)

	// The override clears the invoice, so match advances it without a
	// fresh engine run that would block it again.
	inv, err = f.svc.Match(context.Background(), "INV014", model.MatchType2Way)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceMatched, inv.Status)
	assert.Equal(t, model.MatchStatusOverrideApproved, inv.MatchStatus)

	results, err := f.matchRepo.ListResults(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 1)

	approved, err := f.svc.Approve(context.Background(), "INV014", "finance.manager")
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceApproved, approved.Status)
}

func TestMatch_RetryAfterCommittedPassedRun(t *testing.T) {
	f := newLifecycleFixture(t)
	po := f.poRepo.addPO(model.PurchaseOrder{PONumber: "PO2024-003", SupplierID: f.supplier.ID, Amount: decimal.NewFromInt(100000)})
	f.seedInvoice(t, "INV015", model.InvoiceValidated, func(inv *model.Invoice) {
		inv.POID = &po.ID
	})

	// A PASSED run whose result committed but whose lifecycle advance
	// did not, as when the second write fails mid-flight.
	result, err := f.matching.RunMatch(context.Background(), "INV015", model.MatchType2Way)
	require.NoError(t, err)
	require.Equal(t, model.MatchPassed, result.Status)

	stored, err := f.invoiceRepo.FindByNumber(context.Background(), "INV015")
	require.NoError(t, err)
	require.Equal(t, model.InvoiceValidated, stored.Status)

	// Retrying match advances on the committed result instead of
	// conflicting on a duplicate run.
	inv, err := f.svc.Match(context.Background(), "INV015", model.MatchType2Way)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceMatched, inv.Status)
	assert.Equal(t, "2WAY_MATCH_PASSED", inv.MatchStatus)

	results, err := f.matchRepo.ListResults(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestQueue_TriggersMSMEClassification(t *testing.T) {
	f := newLifecycleFixture(t)
	f.seedInvoice(t, "INV009", model.InvoiceMatched, func(inv *model.Invoice) {
		date := time.Now().UTC().AddDate(0, 0, -52)
		inv.InvoiceDate = &date
	})

	inv, err := f.svc.Queue(context.Background(), "INV009")
	require.NoError(t, err)

	assert.Equal(t, model.InvoicePendingApproval, inv.Status)
	assert.Equal(t, model.MSMEBreached, inv.MSMEStatus)
	require.NotNil(t, inv.MSMEDaysRemaining)
	assert.Equal(t, -7, *inv.MSMEDaysRemaining)
	assert.NotEqual(t, "0.00", inv.MSMEPenaltyAmount)

	assert.Contains(t, f.logStore.names(), events.EventInvoicePendingApproval)
}

func TestApprove_FromPendingApproval(t *testing.T) {
	f := newLifecycleFixture(t)
	f.seedInvoice(t, "INV010", model.InvoicePendingApproval, nil)

	inv, err := f.svc.Approve(context.Background(), "INV010", "finance.manager")
	require.NoError(t, err)

	assert.Equal(t, model.InvoiceApproved, inv.Status)
	assert.Equal(t, model.EBSAPPending, inv.EBSAPStatus)
	assert.Equal(t, "finance.manager", inv.ApprovedBy)
	assert.NotNil(t, inv.ApprovedAt)
	assert.Contains(t, f.logStore.names(), events.EventInvoiceApproved)
}

func TestApprove_DirectlyFromMatched(t *testing.T) {
	f := newLifecycleFixture(t)
	f.seedInvoice(t, "INV011", model.InvoiceMatched, nil)

	inv, err := f.svc.Approve(context.Background(), "INV011", "finance.manager")
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceApproved, inv.Status)
}

func TestReject_FromAnyNonTerminalStatus(t *testing.T) {
	f := newLifecycleFixture(t)

	for i, status := range []string{
		model.InvoiceCaptured, model.InvoiceExtracted, model.InvoiceValidated,
		model.InvoiceMatched, model.InvoicePendingApproval, model.InvoiceApproved,
	} {
		number := fmt.Sprintf("INV-R%02d", i)
		f.seedInvoice(t, number, status, nil)

		inv, err := f.svc.Reject(context.Background(), number, "auditor", "Duplicate submission")
		require.NoError(t, err, "reject from %s", status)
		assert.Equal(t, model.InvoiceRejected, inv.Status)
		assert.Equal(t, model.EBSAPBlocked, inv.EBSAPStatus)
		assert.Equal(t, "Duplicate submission", inv.RejectionReason)
	}
}

func TestReject_IllegalOncePostedOrPaid(t *testing.T) {
	f := newLifecycleFixture(t)

	for i, status := range []string{model.InvoicePostedToEBS, model.InvoicePaid, model.InvoiceRejected} {
		number := fmt.Sprintf("INV-T%02d", i)
		f.seedInvoice(t, number, status, nil)

		_, err := f.svc.Reject(context.Background(), number, "auditor", "too late")
		require.Error(t, err, "reject from %s", status)
		assert.True(t, apperr.IsValidation(err))

		stored, err := f.invoiceRepo.FindByNumber(context.Background(), number)
		require.NoError(t, err)
		assert.Equal(t, status, stored.Status)
	}
}

func TestPostToEBS_RecordsReference(t *testing.T) {
	f := newLifecycleFixture(t)
	f.seedInvoice(t, "INV012", model.InvoiceApproved, nil)

	inv, err := f.svc.PostToEBS(context.Background(), "INV012")
	require.NoError(t, err)

	assert.Equal(t, model.InvoicePostedToEBS, inv.Status)
	assert.Equal(t, model.EBSAPPosted, inv.EBSAPStatus)
	assert.Equal(t, "EBS-AP-INV012", inv.EBSAPRef)
	assert.NotNil(t, inv.EBSPostedAt)
	assert.Contains(t, f.logStore.names(), events.EventInvoicePostedToEBS)
}

func TestSettle_FromPosted(t *testing.T) {
	f := newLifecycleFixture(t)
	f.seedInvoice(t, "INV013", model.InvoicePostedToEBS, nil)

	inv, err := f.svc.Settle(context.Background(), "INV013")
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePaid, inv.Status)
	assert.Contains(t, f.logStore.names(), events.EventInvoicePaid)
}

func TestLifecycle_FullHappyPath(t *testing.T) {
	f := newLifecycleFixture(t)
	po := f.poRepo.addPO(model.PurchaseOrder{PONumber: "PO2024-001", SupplierID: f.supplier.ID, Amount: decimal.NewFromInt(100000)})
	grn := f.poRepo.addGRN(model.GoodsReceiptNote{GRNNumber: "GRN-2024-001", POID: po.ID, Status: model.GRNStatusComplete})

	created, err := f.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		SupplierID:  f.supplier.ID.String(),
		POID:        po.ID.String(),
		GRNID:       grn.ID.String(),
		InvoiceDate: time.Now().UTC().AddDate(0, 0, -5).Format("2006-01-02"),
		Subtotal:    "100000",
		GSTRate:     "18",
	})
	require.NoError(t, err)
	number := created.InvoiceNumber

	steps := []struct {
		run  func() (InvoiceDetailResponse, error)
		want string
	}{
		{func() (InvoiceDetailResponse, error) { return f.svc.Extract(context.Background(), number) }, model.InvoiceExtracted},
		{func() (InvoiceDetailResponse, error) { return f.svc.Validate(context.Background(), number) }, model.InvoiceValidated},
		{func() (InvoiceDetailResponse, error) { return f.svc.Match(context.Background(), number, model.MatchType3Way) }, model.InvoiceMatched},
		{func() (InvoiceDetailResponse, error) { return f.svc.Queue(context.Background(), number) }, model.InvoicePendingApproval},
		{func() (InvoiceDetailResponse, error) { return f.svc.Approve(context.Background(), number, "mgr") }, model.InvoiceApproved},
		{func() (InvoiceDetailResponse, error) { return f.svc.PostToEBS(context.Background(), number) }, model.InvoicePostedToEBS},
		{func() (InvoiceDetailResponse, error) { return f.svc.Settle(context.Background(), number) }, model.InvoicePaid},
	}
	for _, step := range steps {
		inv, err := step.run()
		require.NoError(t, err)
		assert.Equal(t, step.want, inv.Status)
	}

	final, err := f.svc.GetInvoice(context.Background(), number)
	require.NoError(t, err)
	assert.Equal(t, "3WAY_MATCH_PASSED", final.MatchStatus)
	assert.Equal(t, model.MSMEOnTrack, final.MSMEStatus)
	require.NotNil(t, final.PO)
	assert.Equal(t, "PO2024-001", final.PO.PONumber)
	require.NotNil(t, final.GRN)
	assert.Equal(t, "GRN-2024-001", final.GRN.GRNNumber)

	names := f.logStore.names()
	for _, want := range []string{
		events.EventInvoiceExtracted, events.EventInvoiceValidated,
		events.EventMatchingPassed, events.EventInvoiceMatched,
		events.EventInvoicePendingApproval, events.EventInvoiceApproved,
		events.EventInvoicePostedToEBS, events.EventInvoicePaid,
	} {
		assert.Contains(t, names, want)
	}
}

func TestListInvoices_FiltersByStatus(t *testing.T) {
	f := newLifecycleFixture(t)
	f.seedInvoice(t, "INV-L1", model.InvoiceCaptured, nil)
	f.seedInvoice(t, "INV-L2", model.InvoiceApproved, nil)
	f.seedInvoice(t, "INV-L3", model.InvoiceApproved, nil)

	all, total, err := f.svc.ListInvoices(context.Background(), InvoiceFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, all, 3)

	approved, total, err := f.svc.ListInvoices(context.Background(), InvoiceFilter{Status: model.InvoiceApproved})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	for _, inv := range approved {
		assert.Equal(t, model.InvoiceApproved, inv.Status)
	}
}
