package codec

import (
	"math"
	"strconv"
	"time"
	"unicode/utf8"
)

// Fixed widths of the calendar renderers.
const (
	DateSize     = len(dateLayout)
	TimeSize     = len(timeLayout)
	DateTimeSize = len(dateTimeLayout)

	// MaxPrecision is the largest number of fractional digits AppendDecimal renders.
	MaxPrecision = 18
)

const (
	dateLayout     = "2006-01-02"
	timeLayout     = "15:04:05.000"
	dateTimeLayout = "2006-01-02T15:04:05.000"
)

var pow10 = [MaxPrecision + 1]float64{
	1, 1e1, 1e2, 1e3, 1e4, 1e5, 1e6, 1e7, 1e8, 1e9,
	1e10, 1e11, 1e12, 1e13, 1e14, 1e15, 1e16, 1e17, 1e18,
}

// The Append functions render values as ASCII text in the style of
// strconv.Append*: they extend dst and return it, and do not allocate when
// dst has enough spare capacity.

func AppendBool(dst []byte, v bool) []byte {
	if v {
		return append(dst, "true"...)
	}
	return append(dst, "false"...)
}

func AppendChar(dst []byte, r rune) []byte {
	return utf8.AppendRune(dst, r)
}

func AppendInt(dst []byte, v int64) []byte {
	return strconv.AppendInt(dst, v, 10)
}

// AppendFloat renders the shortest decimal that round-trips to v.
func AppendFloat(dst []byte, v float64) []byte {
	return strconv.AppendFloat(dst, v, 'f', -1, 64)
}

// AppendDecimal renders v with exactly precision fractional digits.
// Precision is clamped to [0, MaxPrecision]. Rounding is half away from
// zero on the scaled value. NaN and infinities render as "NaN", "+Inf" and
// "-Inf". Values too large to scale into an int64 fall back to strconv.
func AppendDecimal(dst []byte, v float64, precision int) []byte {
	precision = min(max(precision, 0), MaxPrecision)
	switch {
	case math.IsNaN(v):
		return append(dst, "NaN"...)
	case math.IsInf(v, 1):
		return append(dst, "+Inf"...)
	case math.IsInf(v, -1):
		return append(dst, "-Inf"...)
	}

	neg := v < 0
	scaled := math.Round(math.Abs(v) * pow10[precision])
	if scaled >= math.MaxInt64 {
		return strconv.AppendFloat(dst, v, 'f', precision, 64)
	}
	u := uint64(scaled)
	if neg && u != 0 {
		dst = append(dst, '-')
	}

	// Render digits right to left into a stack buffer: at most 19 integer
	// digits, the point, and the fraction.
	var buf [40]byte
	i := len(buf)
	for d := 0; d < precision; d++ {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	if precision > 0 {
		i--
		buf[i] = '.'
	}
	if u == 0 {
		i--
		buf[i] = '0'
	}
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	return append(dst, buf[i:]...)
}

// AppendScaled renders the fixed-point value mantissa * 10^-scale exactly,
// with scale fractional digits: (12345, 2) is "123.45" and (-5, 3) is
// "-0.005". A negative scale multiplies, appending zeros to a non-zero
// mantissa.
func AppendScaled(dst []byte, mantissa int64, scale int) []byte {
	u := uint64(mantissa) //nolint:gosec // G115: negated below as two's complement
	if mantissa < 0 {
		dst = append(dst, '-')
		u = -u
	}
	zero := u == 0

	var buf [20]byte
	i := len(buf)
	for {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
		if u == 0 {
			break
		}
	}
	digits := buf[i:]

	switch {
	case scale <= 0:
		dst = append(dst, digits...)
		if !zero {
			for range -scale {
				dst = append(dst, '0')
			}
		}
		return dst
	case len(digits) > scale:
		split := len(digits) - scale
		dst = append(dst, digits[:split]...)
		dst = append(dst, '.')
		return append(dst, digits[split:]...)
	default:
		dst = append(dst, '0', '.')
		for range scale - len(digits) {
			dst = append(dst, '0')
		}
		return append(dst, digits...)
	}
}

// AppendDate renders epoch milliseconds as YYYY-MM-DD in UTC.
func AppendDate(dst []byte, millis int64) []byte {
	return time.UnixMilli(millis).UTC().AppendFormat(dst, dateLayout)
}

// AppendTime renders epoch milliseconds as HH:MM:SS.mmm in UTC.
func AppendTime(dst []byte, millis int64) []byte {
	return time.UnixMilli(millis).UTC().AppendFormat(dst, timeLayout)
}

// AppendDateTime renders epoch milliseconds as YYYY-MM-DDTHH:MM:SS.mmm in UTC.
func AppendDateTime(dst []byte, millis int64) []byte {
	return time.UnixMilli(millis).UTC().AppendFormat(dst, dateTimeLayout)
}
