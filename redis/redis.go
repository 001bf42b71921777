package redis

import (
	"errors"
	"fmt"
	"time"

	"imuabridge/config"

	"github.com/gomodule/redigo/redis"
	log "github.com/sirupsen/logrus"
)

const activeAccountKey = "session:activeAccount"

func timeoutDialOptions() []redis.DialOption {
	return []redis.DialOption{
		redis.DialConnectTimeout(5 * time.Second),
		redis.DialReadTimeout(5 * time.Second),
		redis.DialWriteTimeout(5 * time.Second),
	}
}

// Store keeps the wallet session across restarts
type Store struct {
	pool *redis.Pool
}

func newStore(dial func() (redis.Conn, error)) *Store {
	return &Store{
		pool: &redis.Pool{
			MaxIdle:     5,
			IdleTimeout: 240 * time.Second,
			Dial:        dial,
		},
	}
}

func NewStore(addr string) *Store {
	return newStore(func() (redis.Conn, error) { return redis.Dial("tcp", addr, timeoutDialOptions()...) })
}

func Init() *Store {
	redisAddr := fmt.Sprintf("%s:%d", config.Config.Server.RedisHost, config.Config.Server.RedisPort)
	return NewStore(redisAddr)
}

func (s *Store) Ping() error {
	conn := s.pool.Get()
	defer conn.Close()

	_, err := conn.Do("PING")
	return err
}

func (s *Store) LoadActiveAccount() (string, error) {
	conn := s.pool.Get()
	defer conn.Close()

	account, err := redis.String(conn.Do("GET", activeAccountKey))
	if err == nil {
		return account, nil
	}

	if errors.Is(err, redis.ErrNil) {
		return "", nil
	}

	log.Printf("error Redis get: %s", err.Error())
	return "", err
}

func (s *Store) SaveActiveAccount(account string) error {
	conn := s.pool.Get()
	defer conn.Close()

	_, err := conn.Do("SET", activeAccountKey, account)
	if err != nil {
		log.Printf("error Redis set: %s", err.Error())
		return err
	}

	return nil
}

func (s *Store) ClearActiveAccount() error {
	conn := s.pool.Get()
	defer conn.Close()

	_, err := conn.Do("DEL", activeAccountKey)
	if err != nil {
		log.Printf("error Redis DEL: %s", err.Error())
		return err
	}

	return nil
}

func (s *Store) Close() error {
	return s.pool.Close()
}
