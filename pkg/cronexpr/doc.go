// Package cronexpr parses 5-field cron expressions and computes trigger times.
//
// Grammar (fields separated by a single space, fixed order):
//
//	* * * * *
//	| | | | `- day_of_week  0 .. 6 (0 = Monday, 6 = Sunday)
//	| | | `--- month        1 .. 12
//	| | `----- day          1 .. 31
//	| `------- hour         0 .. 23
//	`--------- minute       0 .. 59
//
// Each field is one of:
//   - "*"        any value
//   - "5"        a single value
//   - "1,15,30"  a list of values
//   - "*/10"     every 10th value, counted from the field minimum
//
// Ranges ("1-5"), named values ("MON") and descriptors ("@hourly") are not
// supported. When both day and day_of_week are restricted, a time must satisfy
// both; when only one of them is restricted, only that one applies.
package cronexpr
