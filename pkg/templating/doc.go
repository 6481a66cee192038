/*
Package templating loads a directory tree of html/template files and renders
them by their slash separated path relative to the tree root, such as
"blog/post1.gohtml".

Files ending in the partial suffix ("nav.part.gohtml") are parsed into a
shared base set available to every page; each page is parsed into its own
clone of that set, so pages may redefine blocks declared by the partials
without interfering with each other. The set can be reloaded at runtime with
Refresh.

Besides arithmetic and logic helpers, the function map carries the page
helpers of the renderer: locale aware date, time, duration and number
formatting, markdown rendering, static URL builders, file reads from the data
directory, and uri keyword extraction from a target path.
*/
package templating
