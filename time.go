package hangfire

import "time"

var nowMock int64

func nowEpochSeconds() int64 {
	if nowMock != 0 {
		return nowMock
	}
	return time.Now().Unix()
}

func nowUTC() time.Time {
	if nowMock != 0 {
		return time.Unix(nowMock, 0).UTC()
	}
	return time.Now().UTC()
}

func setNowEpochSecondsMock(t int64) {
	nowMock = t
}

func resetNowEpochSecondsMock() {
	nowMock = 0
}

// timeFormat is the shared serialization contract for every timestamp the
// system writes: ISO-8601, always UTC, sub-second precision preserved.
const timeFormat = "2006-01-02T15:04:05.999999999Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}
