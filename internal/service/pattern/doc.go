// Package pattern finds content elements whose ads click through
// significantly better than the rest of a business's ads.
//
// Each analysis run rebuilds an element index from published content,
// partitions the business's recent performance records by element, and
// keeps the elements that clear the sample-size, uplift and chi-square
// thresholds. The surviving insights replace the business's stored set.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package pattern
