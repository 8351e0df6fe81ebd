package ptr

import "time"

func Int64(i int64) *int64 {
	return &i
}

func Float64(f float64) *float64 {
	return &f
}

func String(s string) *string {
	return &s
}

func Time(t time.Time) *time.Time {
	return &t
}
