package alerts

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Fingerprint identifies one alert occurrence: the same place, type and
// issue time always hash to the same value regardless of which upstream
// path delivered it. Alerts without an English name are keyed by name.
func Fingerprint(a Alert) string {
	place := a.EnglishName
	if place == "" {
		place = a.Name
	}
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(int(a.AlertTypeID))))
	h.Write([]byte{'|'})
	h.Write([]byte(place))
	h.Write([]byte{'|'})
	h.Write([]byte(a.TimeStamp))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// BatchFingerprint hashes an ordered batch. Two polls returning the same
// alerts in the same order share a batch fingerprint.
func BatchFingerprint(batch []Alert) string {
	h := sha256.New()
	for _, a := range batch {
		h.Write([]byte(Fingerprint(a)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
