package engine

import (
	"github.com/aristath/rebalancer/internal/domain"
)

// diagnostics is the mutable accumulator threaded through the pipeline. It is
// owned by a single run and consumed into an immutable domain.Diagnostics at
// the end, so no stage ever shares hidden state.
type diagnostics struct {
	warnings     []string
	warningsSeen map[string]bool
	dataQuality  []domain.DataQualityEvent
	gapBuckets   map[string]bool
	suppressed   []domain.SuppressedIntent
	dropped      []domain.DroppedIntent
	groupEvents  []domain.GroupConstraintEvent
	taxEvents    []domain.TaxBudgetConstraintEvent
	ladder       []domain.CashLadderRow
	breaches     []domain.CashLadderBreach
}

func newDiagnostics() *diagnostics {
	return &diagnostics{
		warningsSeen: make(map[string]bool),
		gapBuckets:   make(map[string]bool),
	}
}

// warn appends a warning once per distinct cause string; repeat causes are
// dropped to keep the warning list stable and readable.
func (d *diagnostics) warn(cause string) {
	if d.warningsSeen[cause] {
		return
	}
	d.warningsSeen[cause] = true
	d.warnings = append(d.warnings, cause)
}

// dataGap records a data-quality event. Gaps never abort the pipeline here;
// blocking is decided by the engine based on options and bucket.
func (d *diagnostics) dataGap(bucket, instrumentID, detail string) {
	d.dataQuality = append(d.dataQuality, domain.DataQualityEvent{
		Bucket:       bucket,
		InstrumentID: instrumentID,
		Detail:       detail,
	})
	d.gapBuckets[bucket] = true
}

// hasGap reports whether any event was recorded in the given bucket.
func (d *diagnostics) hasGap(bucket string) bool {
	return d.gapBuckets[bucket]
}

func (d *diagnostics) suppressIntent(s domain.SuppressedIntent) {
	d.suppressed = append(d.suppressed, s)
}

func (d *diagnostics) dropIntent(di domain.DroppedIntent) {
	d.dropped = append(d.dropped, di)
}

func (d *diagnostics) groupEvent(ev domain.GroupConstraintEvent) {
	d.groupEvents = append(d.groupEvents, ev)
}

func (d *diagnostics) taxEvent(ev domain.TaxBudgetConstraintEvent) {
	d.taxEvents = append(d.taxEvents, ev)
}

func (d *diagnostics) ladderRow(row domain.CashLadderRow) {
	d.ladder = append(d.ladder, row)
}

func (d *diagnostics) breach(b domain.CashLadderBreach) {
	d.breaches = append(d.breaches, b)
}

// build consumes the accumulator into its immutable form.
func (d *diagnostics) build() domain.Diagnostics {
	return domain.Diagnostics{
		Warnings:                  d.warnings,
		DataQuality:               d.dataQuality,
		SuppressedIntents:         d.suppressed,
		DroppedIntents:            d.dropped,
		GroupConstraintEvents:     d.groupEvents,
		TaxBudgetConstraintEvents: d.taxEvents,
		CashLadder:                d.ladder,
		CashLadderBreaches:        d.breaches,
	}
}
