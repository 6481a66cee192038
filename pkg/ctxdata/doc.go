/*
Package ctxdata assembles the data a page template is rendered with.

Every page target (for example "blog/post1.html") has a sidecar data file with
the same stem ("blog/post1.json"), and every directory on the way to it may
hold a shared "_global_" data file. A Handler walks those files, merges them
into three mappings (global, scope and meta) and resolves the directive keys
found along the way:

	+name         append to the existing value of name
	name+         prepend to the existing value of name
	!include      splice another target's scope in under "include"
	!get          copy one field of another target's scope
	!read_name    store the raw contents of a file under name

Data files are read through a Loader; JSON, INI and YAML loaders are provided.
Nothing is cached: each Handler reads its files once and is then discarded.
*/
package ctxdata
