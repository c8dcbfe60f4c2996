package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/spendgate/spendgate/internal/db"
)

// reserveScript is the atomic conditional commit: read both counters, check
// both ceilings, and increment both keys only if neither would be exceeded.
// Floats travel as strings because Lua table replies truncate numbers to
// integers. A ceiling <= 0 means unlimited; a TTL of 0 skips EXPIRE.
const reserveScript = `
local daily = tonumber(redis.call('GET', KEYS[1]) or '0')
local monthly = tonumber(redis.call('GET', KEYS[2]) or '0')
local delta = tonumber(ARGV[1])
local dailyCeil = tonumber(ARGV[2])
local monthlyCeil = tonumber(ARGV[3])
if (dailyCeil > 0 and daily + delta > dailyCeil) or (monthlyCeil > 0 and monthly + delta > monthlyCeil) then
  return {0, tostring(daily), tostring(monthly)}
end
local newDaily = redis.call('INCRBYFLOAT', KEYS[1], ARGV[1])
local newMonthly = redis.call('INCRBYFLOAT', KEYS[2], ARGV[1])
if tonumber(ARGV[4]) > 0 then
  redis.call('EXPIRE', KEYS[1], ARGV[4], 'NX')
end
if tonumber(ARGV[5]) > 0 then
  redis.call('EXPIRE', KEYS[2], ARGV[5], 'NX')
end
return {1, newDaily, newMonthly}
`

// Reserve atomically commits delta against both period counters via EVALSHA
// (EVAL on first use). Implements db.CounterStore.
func (s *Store) Reserve(ctx context.Context, req db.ReserveRequest) (db.ReserveResult, error) {
	keys := []string{req.DailyKey, req.MonthlyKey}
	args := []string{
		strconv.FormatFloat(req.Delta, 'f', -1, 64),
		strconv.FormatFloat(req.DailyCeil, 'f', -1, 64),
		strconv.FormatFloat(req.MonthlyCeil, 'f', -1, 64),
		strconv.FormatInt(int64(req.DailyTTL.Seconds()), 10),
		strconv.FormatInt(int64(req.MonthlyTTL.Seconds()), 10),
	}

	reply, err := s.reserve.Exec(ctx, s.client, keys, args).ToArray()
	if err != nil {
		return db.ReserveResult{}, &db.Error{Op: db.OpEval, Err: err}
	}
	if len(reply) != 3 {
		return db.ReserveResult{}, &db.Error{Op: db.OpEval, Err: fmt.Errorf("unexpected reply length %d", len(reply))}
	}

	accepted, err := reply[0].AsInt64()
	if err != nil {
		return db.ReserveResult{}, &db.Error{Op: db.OpEval, Err: err}
	}
	daily, err := messageFloat(reply[1])
	if err != nil {
		return db.ReserveResult{}, &db.Error{Op: db.OpEval, Err: err}
	}
	monthly, err := messageFloat(reply[2])
	if err != nil {
		return db.ReserveResult{}, &db.Error{Op: db.OpEval, Err: err}
	}

	return db.ReserveResult{Accepted: accepted == 1, Daily: daily, Monthly: monthly}, nil
}

// GetFloat returns the float counter at key, 0 if the key does not exist.
func (s *Store) GetFloat(ctx context.Context, key string) (float64, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	val, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return 0, &db.Error{Op: db.OpGet, Err: fmt.Errorf("parse %q: %w", string(data), err)}
	}
	return val, nil
}

func messageFloat(m rueidis.RedisMessage) (float64, error) {
	str, err := m.ToString()
	if err != nil {
		return 0, err
	}
	val, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", str, err)
	}
	return val, nil
}
