// Copyright 2020-2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package expr

import (
	"fmt"
	"strings"
	"time"

	"github.com/dolthub/quereus/sql"
)

// temporalKind classifies a string operand of +/- as date, time,
// datetime, duration or "not temporal" (pass through to numeric
// arithmetic), per the open design note in §9: rather than pull in a
// third-party ISO-8601 duration library, the required subset of the
// matrix is implemented directly, since the full matrix is small:
// date-date->duration, date+-duration->date, time+-duration->time,
// datetime+-duration->datetime, duration*number, duration/duration->ratio.
type temporalKind int

const (
	notTemporal temporalKind = iota
	temporalDate
	temporalTime
	temporalDateTime
	temporalDuration
)

const (
	dateLayout     = "2006-01-02"
	timeLayout     = "15:04:05"
	dateTimeLayout = "2006-01-02T15:04:05"
)

func classify(v sql.Value) (temporalKind, time.Time, time.Duration) {
	s, ok := v.(string)
	if !ok {
		return notTemporal, time.Time{}, 0
	}
	if d, ok := parseISODuration(s); ok {
		return temporalDuration, time.Time{}, d
	}
	if t, err := time.Parse(dateTimeLayout, s); err == nil {
		return temporalDateTime, t, 0
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return temporalDate, t, 0
	}
	if t, err := time.Parse(timeLayout, s); err == nil {
		return temporalTime, t, 0
	}
	return notTemporal, time.Time{}, 0
}

// parseISODuration parses a (restricted) ISO-8601 duration: PnYnMnDTnHnMnS.
// Fractional seconds are supported; years/months are approximated as
// 365/30 days respectively, which is adequate for the arithmetic this
// engine performs (exact calendar-aware month arithmetic is out of
// scope).
func parseISODuration(s string) (time.Duration, bool) {
	if len(s) < 2 || s[0] != 'P' {
		return 0, false
	}
	var total time.Duration
	inTime := false
	num := strings.Builder{}
	matched := false
	for _, r := range s[1:] {
		switch {
		case r == 'T':
			inTime = true
		case r >= '0' && r <= '9' || r == '.':
			num.WriteRune(r)
		case r == 'Y' || r == 'M' || r == 'D' || r == 'H' || r == 'S':
			var n float64
			if _, err := fmt.Sscanf(num.String(), "%f", &n); err != nil {
				return 0, false
			}
			num.Reset()
			matched = true
			switch r {
			case 'Y':
				total += time.Duration(n * 365 * 24 * float64(time.Hour))
			case 'M':
				if inTime {
					total += time.Duration(n * float64(time.Minute))
				} else {
					total += time.Duration(n * 30 * 24 * float64(time.Hour))
				}
			case 'D':
				total += time.Duration(n * 24 * float64(time.Hour))
			case 'H':
				total += time.Duration(n * float64(time.Hour))
			case 'S':
				total += time.Duration(n * float64(time.Second))
			}
		default:
			return 0, false
		}
	}
	if !matched {
		return 0, false
	}
	return total, true
}

func formatISODuration(d time.Duration) string {
	neg := d < 0
	if neg {
		d = -d
	}
	hours := d / time.Hour
	d -= hours * time.Hour
	mins := d / time.Minute
	d -= mins * time.Minute
	secs := d.Seconds() - float64(mins)*0 // seconds remainder incl fraction
	secs = d.Seconds()
	out := fmt.Sprintf("P0DT%dH%dM%gS", hours, mins, secs)
	if neg {
		return "-" + out
	}
	return out
}

// tryTemporalArithmetic implements the type matrix of §4.3. ok is false
// when neither operand looks temporal, signalling the caller should fall
// back to plain numeric arithmetic.
func tryTemporalArithmetic(op ArithOp, l, r sql.Value) (sql.Value, bool, error) {
	lk, lt, ld := classify(l)
	rk, rt, rd := classify(r)
	if lk == notTemporal && rk == notTemporal {
		return nil, false, nil
	}

	switch {
	case isDateLike(lk) && isDateLike(rk) && op == Sub:
		return formatISODuration(lt.Sub(rt)), true, nil

	case isDateLike(lk) && rk == temporalDuration && (op == Add || op == Sub):
		var delta time.Duration
		if op == Add {
			delta = rd
		} else {
			delta = -rd
		}
		return formatTemporal(lk, lt.Add(delta)), true, nil

	case lk == temporalDuration && isDateLike(rk) && op == Add:
		return formatTemporal(rk, rt.Add(ld)), true, nil

	case lk == temporalDuration && rk == temporalDuration:
		switch op {
		case Add:
			return formatISODuration(ld + rd), true, nil
		case Sub:
			return formatISODuration(ld - rd), true, nil
		case Div:
			if rd == 0 {
				return nil, true, nil
			}
			return float64(ld) / float64(rd), true, nil
		}

	case lk == temporalDuration && rk == notTemporal:
		n, ok := toFloat(r)
		if !ok {
			return nil, true, nil
		}
		switch op {
		case Mul:
			return formatISODuration(time.Duration(float64(ld) * n)), true, nil
		case Div:
			if n == 0 {
				return nil, true, nil
			}
			return formatISODuration(time.Duration(float64(ld) / n)), true, nil
		}
	}

	if lk != notTemporal || rk != notTemporal {
		// One side looked temporal but the combination of operator/kinds
		// is not in the supported matrix; surface null rather than
		// silently reinterpreting the string numerically.
		return nil, true, nil
	}
	return nil, false, nil
}

func isDateLike(k temporalKind) bool {
	return k == temporalDate || k == temporalTime || k == temporalDateTime
}

func formatTemporal(k temporalKind, t time.Time) string {
	switch k {
	case temporalDate:
		return t.Format(dateLayout)
	case temporalTime:
		return t.Format(timeLayout)
	default:
		return t.Format(dateTimeLayout)
	}
}
