package main

import (
	"net/url"
	"strconv"
	"strings"
)

func intToString(value int) string {
	return strconv.Itoa(value)
}

func setIfNotEmpty(values url.Values, key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	values.Set(key, value)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
