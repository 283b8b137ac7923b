package pipeline

import (
	"context"
	"fmt"
	"io"
)

// UploadItem is one selected attachment awaiting transfer.
type UploadItem struct {
	Name    string
	Content io.Reader
	Caption string
}

// FailedUpload pairs a file with the error that stopped it, so the UI can
// offer retry for just the failures.
type FailedUpload struct {
	Item UploadItem
	Err  error
}

// BatchResult summarizes a multi-file send.
type BatchResult struct {
	// SentTempIDs identifies, by temporary id, the items whose upload and
	// durable write both completed.
	SentTempIDs []string
	Failed      []FailedUpload
	// Remaining holds items never attempted because the batch was canceled.
	// They are intact and can be resubmitted as-is.
	Remaining []UploadItem
}

// SendImages uploads each file and sends the successful ones as individual
// messages. One failed file does not abort the rest of the batch, and a send
// that fails after its upload succeeded lands in Failed too. Canceling ctx
// stops in-flight and not-yet-started transfers; untouched items are returned
// in Remaining for retry.
func (p *Pipeline) SendImages(ctx context.Context, items []UploadItem) BatchResult {
	type pendingSend struct {
		item   UploadItem
		tempID string
		result <-chan SendResult
	}

	var result BatchResult
	var pending []pendingSend

	for i, item := range items {
		if ctx.Err() != nil {
			result.Remaining = append(result.Remaining, items[i:]...)
			break
		}

		url, err := p.backend.UploadImage(ctx, item.Name, item.Content)
		if err != nil {
			if ctx.Err() != nil {
				// The transfer was aborted by the user, not rejected; the
				// item stays retryable along with everything after it.
				result.Remaining = append(result.Remaining, items[i:]...)
				break
			}
			result.Failed = append(result.Failed, FailedUpload{Item: item, Err: fmt.Errorf("upload %q: %w", item.Name, err)})
			continue
		}

		temp, res := p.Send(ctx, Draft{Text: item.Caption, ImageURL: url})
		pending = append(pending, pendingSend{item: item, tempID: temp.ID, result: res})
	}

	for _, ps := range pending {
		if res := <-ps.result; res.Err != nil {
			result.Failed = append(result.Failed, FailedUpload{Item: ps.item, Err: res.Err})
			continue
		}
		result.SentTempIDs = append(result.SentTempIDs, ps.tempID)
	}
	return result
}
