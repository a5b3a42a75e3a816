package transcribe

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// ProbeDuration returns the length of a WAV file in seconds. Other containers
// are reported as an error; callers treat the duration as unknown then.
func ProbeDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("transcribe: %s is not a wav file", path)
	}
	d, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("transcribe: wav duration: %w", err)
	}
	return d.Seconds(), nil
}
