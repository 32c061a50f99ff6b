// internal/signaling/candidates.go
package signaling

import "github.com/jason-s-yu/gamehub/internal/models"

// CandidateSet remembers which remote ICE candidates were already handed to
// a peer connection. Documents arrive as full snapshots, so every snapshot
// repeats all candidates seen so far.
type CandidateSet map[string]struct{}

// Fresh returns the candidates not seen before, in document order, and
// marks them as seen. Empty candidate strings (end-of-candidates markers)
// are skipped.
func (s CandidateSet) Fresh(cands []models.ICECandidate) []models.ICECandidate {
	var out []models.ICECandidate
	for _, c := range cands {
		if c.Candidate == "" {
			continue
		}
		if _, seen := s[c.Candidate]; seen {
			continue
		}
		s[c.Candidate] = struct{}{}
		out = append(out, c)
	}
	return out
}
