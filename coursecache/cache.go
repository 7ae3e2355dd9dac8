package coursecache

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/MrEthical07/goSession/model"
	"github.com/MrEthical07/goSession/sessionstore"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Key is the session store slot holding one user's courses by id.
var Key = sessionstore.NewKey[map[int]model.Course]("courseCache")

// ErrNoUser is returned by Prefetch when nobody is signed in.
var ErrNoUser = errors.New("course cache requires a current user")

// Fetcher loads one course from the backend.
type Fetcher func(ctx context.Context, courseID int) (model.Course, error)

// Options configures a Cache. CurrentUser is required.
type Options struct {
	Store       *sessionstore.Store
	CurrentUser func() (int, bool)
	Logger      zerolog.Logger
	// OnHit and OnMiss are called for every lookup made through Get or
	// GetOrFetch.
	OnHit  func()
	OnMiss func()
}

type Cache struct {
	store       *sessionstore.Store
	currentUser func() (int, bool)
	log         zerolog.Logger
	onHit       func()
	onMiss      func()

	flight singleflight.Group

	// mu orders Reset against fetched writes; gen counts resets.
	mu  sync.Mutex
	gen uint64
}

func New(opts Options) (*Cache, error) {
	if opts.CurrentUser == nil {
		return nil, errors.New("course cache requires a current-user source")
	}
	if opts.Store == nil {
		opts.Store = sessionstore.New()
	}
	noop := func() {}
	if opts.OnHit == nil {
		opts.OnHit = noop
	}
	if opts.OnMiss == nil {
		opts.OnMiss = noop
	}
	return &Cache{
		store:       opts.Store,
		currentUser: opts.CurrentUser,
		log:         opts.Logger.With().Str("component", "coursecache").Logger(),
		onHit:       opts.OnHit,
		onMiss:      opts.OnMiss,
	}, nil
}

// Get returns the cached course for the current user. It is absent when no
// user is signed in.
func (c *Cache) Get(courseID int) (model.Course, bool) {
	uid, ok := c.currentUser()
	if !ok {
		return model.Course{}, false
	}
	course, ok := c.lookup(uid, courseID)
	if ok {
		c.onHit()
	} else {
		c.onMiss()
	}
	return course, ok
}

func (c *Cache) lookup(uid, courseID int) (model.Course, bool) {
	courses, ok := sessionstore.GetUser(c.store, Key, uid)
	if !ok {
		return model.Course{}, false
	}
	course, ok := courses[courseID]
	return course, ok
}

// Set stores course for the current user; it does nothing when no user is
// signed in.
func (c *Cache) Set(course model.Course) {
	uid, ok := c.currentUser()
	if !ok {
		return
	}
	c.setFor(uid, course)
}

// setFor writes copy-on-write so maps returned by GetUser are never mutated.
func (c *Cache) setFor(uid int, course model.Course) {
	sessionstore.UpdateUser(c.store, Key, uid, func(cur map[int]model.Course, _ bool) map[int]model.Course {
		next := make(map[int]model.Course, len(cur)+1)
		for id, v := range cur {
			next[id] = v
		}
		next[course.ID] = course
		return next
	})
}

// Reset drops every cached course for every user. Fetches that started
// before Reset do not write their results.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.store.DropKey(Key.Name())
}

func (c *Cache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// storeFetched caches course for uid if no Reset happened since gen and uid
// is still the current user.
func (c *Cache) storeFetched(gen uint64, uid int, course model.Course) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	if now, ok := c.currentUser(); !ok || now != uid {
		return false
	}
	c.setFor(uid, course)
	return true
}

// Len returns how many courses are cached for the current user.
func (c *Cache) Len() int {
	uid, ok := c.currentUser()
	if !ok {
		return 0
	}
	courses, _ := sessionstore.GetUser(c.store, Key, uid)
	return len(courses)
}

// GetOrFetch returns the cached course or fetches it. Concurrent misses for
// the same (user, course) share one fetch. A fetched course is cached only if
// the same user is still signed in when it arrives; failures are not cached.
// With no user the course is fetched and returned without caching.
func (c *Cache) GetOrFetch(ctx context.Context, courseID int, fetch Fetcher) (model.Course, error) {
	uid, signedIn := c.currentUser()
	if signedIn {
		if course, ok := c.lookup(uid, courseID); ok {
			c.onHit()
			return course, nil
		}
	}
	c.onMiss()

	key := strconv.Itoa(uid) + ":" + strconv.Itoa(courseID)
	ch := c.flight.DoChan(key, func() (interface{}, error) {
		gen := c.generation()
		course, err := fetch(context.WithoutCancel(ctx), courseID)
		if err != nil {
			return model.Course{}, err
		}
		if signedIn && !c.storeFetched(gen, uid, course) {
			c.log.Debug().Int("course_id", courseID).Msg("fetched course discarded after session change")
		}
		return course, nil
	})

	select {
	case <-ctx.Done():
		return model.Course{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.log.Warn().Err(res.Err).Int("course_id", courseID).Msg("course fetch failed")
			return model.Course{}, res.Err
		}
		return res.Val.(model.Course), nil
	}
}

// Prefetch warms the cache for ids with at most limit fetches in flight.
// Already-cached ids are skipped. The first fetch error is returned after all
// started fetches finish.
func (c *Cache) Prefetch(ctx context.Context, ids []int, fetch Fetcher, limit int) error {
	uid, ok := c.currentUser()
	if !ok {
		return ErrNoUser
	}
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, id := range ids {
		if _, cached := c.lookup(uid, id); cached {
			continue
		}
		g.Go(func() error {
			_, err := c.GetOrFetch(gctx, id, fetch)
			return err
		})
	}
	return g.Wait()
}
