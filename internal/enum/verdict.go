package enum

type Verdict string

const (
	VerdictPhishing   Verdict = "phishing"
	VerdictLegitimate Verdict = "legitimate"
	VerdictDangerous  Verdict = "dangerous"
	VerdictSafe       Verdict = "safe"
	VerdictUnknown    Verdict = "unknown"
)

func (t Verdict) String() string {
	return string(t)
}

// Malicious reports whether the verdict should trigger quarantine
func (t Verdict) Malicious() bool {
	return t == VerdictPhishing || t == VerdictDangerous
}
