// Package publish delivers completed frames to Redis for downstream
// consumers.
package publish
