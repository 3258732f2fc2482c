package convert

import (
	"context"
	"fmt"
	"log"

	"github.com/mdconvert/backend/internal/models"
	"github.com/mdconvert/backend/internal/staging"
)

// Dispatcher drives conversion attempts for staged files and records the
// outcome in the store. One file's failure never aborts its batch.
type Dispatcher struct {
	store     staging.Store
	converter Converter
}

// NewDispatcher creates a dispatcher backed by the given converter.
func NewDispatcher(store staging.Store, converter Converter) *Dispatcher {
	return &Dispatcher{store: store, converter: converter}
}

// Dispatch runs the conversion attempt for one staged file, updates its
// status and attaches the result. The result is returned for convenience.
func (d *Dispatcher) Dispatch(ctx context.Context, id string) *models.ConversionResult {
	result := d.attempt(ctx, id)
	if result.ErrorDetail != "" {
		d.store.SetStatus(id, models.StatusFailed)
	} else {
		d.store.SetStatus(id, models.StatusConverted)
	}
	d.store.SetResult(result)
	return result
}

// DispatchBatch converts staged files sequentially. Each file gets exactly
// one attempt; failures are isolated per file.
func (d *Dispatcher) DispatchBatch(ctx context.Context, ids []string) []*models.ConversionResult {
	results := make([]*models.ConversionResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, d.Dispatch(ctx, id))
	}
	return results
}

// attempt performs the external call. Panics from the converter are
// recovered into a failed result so a single bad file cannot take down
// the server or the rest of the batch.
func (d *Dispatcher) attempt(ctx context.Context, id string) (result *models.ConversionResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Dispatch %s] PANIC recovered: %v", id, r)
			result = &models.ConversionResult{
				SourceID:    id,
				ErrorCode:   string(ConversionFailed),
				ErrorDetail: fmt.Sprintf("conversion failed: internal error: %v", r),
			}
		}
	}()

	path, ok := d.store.Path(id)
	if !ok {
		return &models.ConversionResult{
			SourceID:    id,
			ErrorCode:   string(ConversionFailed),
			ErrorDetail: fmt.Sprintf("conversion failed: staged file %s no longer exists", id),
		}
	}

	log.Printf("[Dispatch %s] converting %s", id, path)
	markdown, err := d.converter.Convert(ctx, path)
	if err != nil {
		log.Printf("[Dispatch %s] failed: %v", id, err)
		return &models.ConversionResult{
			SourceID:    id,
			ErrorCode:   string(Classify(err)),
			ErrorDetail: describeFailure(err),
		}
	}

	log.Printf("[Dispatch %s] converted (%d bytes of markdown)", id, len(markdown))
	return &models.ConversionResult{SourceID: id, Markdown: markdown}
}

// describeFailure turns a classified error into the human-readable detail
// surfaced next to the file in the batch response.
func describeFailure(err error) string {
	switch Classify(err) {
	case UnsupportedFormat:
		return fmt.Sprintf("unsupported format: %v", err)
	case MissingSystemDependency:
		return fmt.Sprintf("missing system dependency: %v", err)
	default:
		return fmt.Sprintf("conversion failed: %v", err)
	}
}
