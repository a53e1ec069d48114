package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// BankQuestionsKey returns the cache key for a kind's question set in bank order
func (r *CacheKeyStruct) BankQuestionsKey(kind string) string {
	return fmt.Sprintf("bank:%s:questions", kind)
}

var CacheKey = NewCacheKeyStruct()
