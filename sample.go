package fxfolio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// SamplePositions is a minimal positions file.
const SamplePositions = `ticker,shares_held,avg_cost_usd
AAPL,10.0,175.50
MSFT,5.5,350.00
`

// SampleTransfers is a minimal transfers file.
const SampleTransfers = `Date,Activity,Cash Amount (in USD)
2024-01-01,Wire transfer,100.00
2024-01-15,Wire transfer,2500.00
2024-02-03,Wire transfer,1200.50
`

// WriteSample writes content to path unless the file already exists.
// It reports whether the file was written.
func WriteSample(path, content string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("writing sample %q: %w", path, err)
	}
	return true, nil
}
