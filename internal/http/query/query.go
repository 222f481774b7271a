// Package query разбирает общие параметры строки запроса.
package query

import (
	"errors"
	"net/http"
	"strconv"
)

// ErrInvalidPage возвращается, если limit или offset не целые числа.
var ErrInvalidPage = errors.New("limit and offset must be integers")

// Page читает limit и offset. Отсутствующий параметр равен нулю,
// границы применяет сервис.
func Page(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if limit, err = intParam(q.Get("limit")); err != nil {
		return 0, 0, ErrInvalidPage
	}
	if offset, err = intParam(q.Get("offset")); err != nil {
		return 0, 0, ErrInvalidPage
	}
	return limit, offset, nil
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
