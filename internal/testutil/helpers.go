package testutil

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// GenerateRandomData returns size bytes of pseudo-random, effectively
// incompressible data.
func GenerateRandomData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(rand.Intn(256))
	}
	return data
}

// GenerateTestBucketName generates a DNS-compliant bucket name unique
// enough for test isolation.
func GenerateTestBucketName(prefix string) string {
	name := fmt.Sprintf("%s-%d-%d", prefix, time.Now().Unix(), rand.Int31n(10000))
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "_", "-")
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}
