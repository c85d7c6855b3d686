// Copyright 2025 Blink Labs Software
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

package api

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
)

// ipLimiter bounds the number of in-flight requests per client IP
type ipLimiter struct {
	counts map[string]int
	max    int
	mu     sync.Mutex
}

func newIPLimiter(maxPerIP int) *ipLimiter {
	return &ipLimiter{
		counts: make(map[string]int),
		max:    maxPerIP,
	}
}

// ipKeyFromRemoteAddr extracts a limiter key from a request's remote
// address. For IPv4 addresses the key is the bare IP string. For IPv6
// addresses the key is the /64 prefix so that a client rotating within a
// single /64 subnet is still limited as one source. Addresses that do not
// parse return an empty string and are exempt.
func ipKeyFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return ""
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}
	if ip4 := ip.To4(); ip4 != nil {
		return ip4.String()
	}
	mask := net.CIDRMask(64, 128)
	return ip.Mask(mask).String() + "/64"
}

// acquire reserves a request slot for the given key. It returns false if
// the per-IP limit has been reached.
func (l *ipLimiter) acquire(key string) bool {
	if key == "" || l.max < 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[key] >= l.max {
		return false
	}
	l.counts[key]++
	return true
}

func (l *ipLimiter) release(key string) {
	if key == "" || l.max < 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[key]--
	if l.counts[key] <= 0 {
		delete(l.counts, key)
	}
}

func (l *ipLimiter) inFlight(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[key]
}

func (l *ipLimiter) middleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ipKeyFromRemoteAddr(r.RemoteAddr)
		if !l.acquire(key) {
			logger.Debug("per-IP request limit reached", "ip", key)
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		defer l.release(key)
		next.ServeHTTP(w, r)
	})
}
