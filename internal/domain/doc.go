// Package domain contains the core experiment types shared across the
// engine: experiments and their variants, subject assignments, recorded
// outcome events, and derived analysis results.
//
// Types here are pure data. Business rules (validation, lifecycle guards,
// bucketing) live in service packages; persistence lives in repository
// implementations.
package domain
