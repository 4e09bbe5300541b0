package calls

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// wireAmount is a whole number sent by a JS backend, which may serialize coins and
// seconds as fractional numbers or numeric strings. Fractions round half away from
// zero (12.5 -> 13, 12.4 -> 12). null and "" decode as zero, i.e. missing.
type wireAmount int64

func (a *wireAmount) UnmarshalJSON(b []byte) error {
	s := string(bytes.TrimSpace(b))
	if s == "null" {
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
		if s == "" {
			*a = 0
			return nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*a = wireAmount(n)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return fmt.Errorf("calls: %s is not a whole-number amount", b)
	}
	*a = wireAmount(math.Round(f))
	return nil
}

// UnmarshalJSON decodes coin and duration fields through wireAmount so a
// fractional value does not reject the whole event.
func (r *RawTransaction) UnmarshalJSON(b []byte) error {
	type plain RawTransaction
	aux := struct {
		*plain
		TotalCoins      wireAmount `json:"totalCoins"`
		BilledCoins     wireAmount `json:"billedCoins"`
		ReceiverShare   wireAmount `json:"receiverShare"`
		FemaleShare     wireAmount `json:"femaleShare"`
		AdminShare      wireAmount `json:"adminShare"`
		DurationSeconds wireAmount `json:"durationSeconds"`
	}{
		plain:           (*plain)(r),
		TotalCoins:      wireAmount(r.TotalCoins),
		BilledCoins:     wireAmount(r.BilledCoins),
		ReceiverShare:   wireAmount(r.ReceiverShare),
		FemaleShare:     wireAmount(r.FemaleShare),
		AdminShare:      wireAmount(r.AdminShare),
		DurationSeconds: wireAmount(r.DurationSeconds),
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.TotalCoins = int64(aux.TotalCoins)
	r.BilledCoins = int64(aux.BilledCoins)
	r.ReceiverShare = int64(aux.ReceiverShare)
	r.FemaleShare = int64(aux.FemaleShare)
	r.AdminShare = int64(aux.AdminShare)
	r.DurationSeconds = int(aux.DurationSeconds)
	return nil
}

func (d *Distribution) UnmarshalJSON(b []byte) error {
	type plain Distribution
	aux := struct {
		*plain
		FemaleShare wireAmount `json:"femaleShare"`
		AdminShare  wireAmount `json:"adminShare"`
	}{
		plain:       (*plain)(d),
		FemaleShare: wireAmount(d.FemaleShare),
		AdminShare:  wireAmount(d.AdminShare),
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	d.FemaleShare = int64(aux.FemaleShare)
	d.AdminShare = int64(aux.AdminShare)
	return nil
}

func (r *Rates) UnmarshalJSON(b []byte) error {
	aux := struct {
		Voice wireAmount `json:"voice"`
		Video wireAmount `json:"video"`
	}{Voice: wireAmount(r.Voice), Video: wireAmount(r.Video)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.Voice = int64(aux.Voice)
	r.Video = int64(aux.Video)
	return nil
}
