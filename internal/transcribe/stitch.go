package transcribe

import (
	"math"
	"strings"

	"github.com/snarg/pullquote/internal/audio"
	"github.com/snarg/pullquote/internal/stamp"
)

// Stitch merges per-chunk transcripts into one source-relative transcript.
// Each chunk's stamps are shifted by the chunk's start offset, then chunks
// are concatenated in index order. Lines whose shifted stamp does not
// advance past the previous chunk's last stamp fall inside the overlap that
// chunk already covered and are dropped. Within a chunk every line is kept,
// so back-to-back lines sharing a second-resolution stamp survive.
func Stitch(chunks []audio.Chunk, texts []string) string {
	var out []string
	cutoff := -1 // last stamp emitted by earlier chunks

	for i, text := range texts {
		shifted := stamp.Shift(strings.TrimSpace(text), int(math.Round(chunks[i].Start)))
		// Unstamped lines ride along with the stamped line above them.
		// Until this chunk emits its first kept stamped line, they belong
		// to the overlap region and are skipped (except in the first chunk).
		emitting := i == 0
		chunkMax := cutoff
		for _, line := range strings.Split(shifted, "\n") {
			sec, ok := stamp.LineSeconds(strings.TrimSpace(line))
			if ok {
				if sec <= cutoff {
					emitting = false
					continue
				}
				if sec > chunkMax {
					chunkMax = sec
				}
				emitting = true
			}
			if emitting {
				out = append(out, line)
			}
		}
		cutoff = chunkMax
	}

	return strings.Join(out, "\n")
}
