package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
)

// Speaks the exec transcriber protocol. Model paths containing "crash" exit
// before ready, "broken" reports a load error. Audio paths containing "fail"
// get an error response, "nodur" omits the duration line, "flood" streams
// many segments without a duration.
func main() {
	var model, device, language string
	flag.StringVar(&model, "model", "", "model dir")
	flag.StringVar(&device, "device", "cpu", "device")
	flag.StringVar(&language, "language", "", "language")
	flag.Parse()

	if strings.Contains(model, "crash") {
		fmt.Fprintln(os.Stderr, "cannot load model")
		os.Exit(3)
	}
	out := json.NewEncoder(os.Stdout)
	if strings.Contains(model, "broken") {
		_ = out.Encode(map[string]any{"error": "bad weights"})
		os.Exit(1)
	}
	fmt.Println("loading weights...")
	_ = out.Encode(map[string]any{"ready": true})

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		var req struct {
			Audio string `json:"audio"`
		}
		if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
			_ = out.Encode(map[string]any{"error": "bad request"})
			continue
		}
		if strings.Contains(req.Audio, "fail") {
			_ = out.Encode(map[string]any{"error": "decode failed"})
			continue
		}
		if strings.Contains(req.Audio, "flood") {
			for i := 0; i < 500; i++ {
				_ = out.Encode(map[string]any{"start": float64(i), "end": float64(i + 1), "text": "x"})
			}
			_ = out.Encode(map[string]any{"done": true})
			continue
		}
		if !strings.Contains(req.Audio, "nodur") {
			_ = out.Encode(map[string]any{"duration": 4.0})
		}
		_ = out.Encode(map[string]any{"start": 0.0, "end": 2.0, "text": "hello"})
		_ = out.Encode(map[string]any{"start": 2.0, "end": 4.0, "text": " " + device + language})
		_ = out.Encode(map[string]any{"done": true})
	}
}
