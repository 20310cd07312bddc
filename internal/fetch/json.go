package fetch

import (
	"context"
	"encoding/json"
	"fmt"
)

// JSON fetches req through d and decodes the payload into T.
func JSON[T any](ctx context.Context, d Doer, req *Request, opts ...Option) (T, error) {
	var out T

	body, err := d.Do(ctx, req, opts...)
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	return out, nil
}
