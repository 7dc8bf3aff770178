package counter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	campaignOpensKey  = "marketing:counters:opens"
	campaignClicksKey = "marketing:counters:clicks"
)

// Counter buffers campaign open and click increments in Redis hashes and
// periodically applies them to marketing_campaigns in one UPDATE per column.
type Counter struct {
	rdb redis.Cmdable
	db  *gorm.DB
}

func New(rdb redis.Cmdable, db *gorm.DB) *Counter {
	return &Counter{rdb: rdb, db: db}
}

// AddCampaignOpen increments the pending open counter for a campaign.
func (c *Counter) AddCampaignOpen(ctx context.Context, campaignID uint) error {
	field := strconv.FormatUint(uint64(campaignID), 10)
	return c.rdb.HIncrBy(ctx, campaignOpensKey, field, 1).Err()
}

// AddCampaignClick increments the pending click counter for a campaign.
func (c *Counter) AddCampaignClick(ctx context.Context, campaignID uint) error {
	field := strconv.FormatUint(uint64(campaignID), 10)
	return c.rdb.HIncrBy(ctx, campaignClicksKey, field, 1).Err()
}

// FlushAll flushes opens and clicks to the database.
func (c *Counter) FlushAll(ctx context.Context) error {
	if err := c.flushHashToTable(ctx, campaignOpensKey, "marketing_campaigns", "open_count"); err != nil {
		return err
	}
	return c.flushHashToTable(ctx, campaignClicksKey, "marketing_campaigns", "click_count")
}

type increment struct {
	id  uint64
	inc int64
}

// flushHashToTable drains a Redis hash through RENAME to a temporary key so
// increments arriving during the flush land in a fresh hash.
func (c *Counter) flushHashToTable(ctx context.Context, redisKey, table, column string) error {
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := c.rdb.Rename(ctx, redisKey, tmpKey).Err(); err != nil {
		if errors.Is(err, redis.Nil) || strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		return err
	}
	defer c.rdb.Del(ctx, tmpKey)

	data, err := c.rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	pairs := parseIncrements(data)
	if len(pairs) == 0 {
		return nil
	}
	sql, args := buildIncrementSQL(table, column, pairs)
	return c.db.WithContext(ctx).Exec(sql, args...).Error
}

func parseIncrements(data map[string]string) []increment {
	pairs := make([]increment, 0, len(data))
	for k, v := range data {
		id, perr := strconv.ParseUint(k, 10, 64)
		if perr != nil {
			continue
		}
		inc, ierr := strconv.ParseInt(v, 10, 64)
		if ierr != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, increment{id: id, inc: inc})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })
	return pairs
}

// buildIncrementSQL composes
// UPDATE <table> SET <column> = <column> + CASE id WHEN ? THEN ? ... END WHERE id IN (...)
func buildIncrementSQL(table, column string, pairs []increment) (string, []interface{}) {
	var builder strings.Builder
	args := make([]interface{}, 0, len(pairs)*3)
	builder.WriteString("UPDATE ")
	builder.WriteString(table)
	builder.WriteString(" SET ")
	builder.WriteString(column)
	builder.WriteString(" = ")
	builder.WriteString(column)
	builder.WriteString(" + CASE id")
	for _, p := range pairs {
		builder.WriteString(" WHEN ? THEN ?")
		args = append(args, p.id, p.inc)
	}
	builder.WriteString(" END WHERE id IN (")
	for i, p := range pairs {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString("?")
		args = append(args, p.id)
	}
	builder.WriteString(")")
	return builder.String(), args
}
