package testing

import "math/rand"

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandString returns a 10 character random string suitable for unique
// usernames in tests
func RandString() string {
	out := make([]byte, 10)
	for i := range out {
		out[i] = charset[rand.Intn(len(charset))]
	}
	return string(out)
}
